// Package delivery dispatches one-time codes to their out-of-band channel.
//
// Each channel maps to an HTTP webhook owned by the provider integration.
// A channel without a webhook falls back to a log-only sender, which is what
// local development runs on.
package delivery
