// Package otp implements one-time-code authentication: issuing codes,
// redeeming them for sessions, and checking or revoking those sessions.
//
// Service owns the flow. Persistence, hashing, delivery and audit fan-out are
// collaborators injected at construction so the flow can run against the
// in-memory store in tests and against Postgres in production.
package otp
