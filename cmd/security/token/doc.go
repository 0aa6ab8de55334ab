// Package token generates and hashes opaque session tokens.
//
// A session token is 32 random bytes rendered as 64 hex characters. Only
// its digest is stored: SHA-256 by default, or HMAC-SHA256 when a server
// key is configured (ACCESSGATE_TOKEN_HMAC_KEY). Both produce 64 hex chars,
// so switching modes never changes column shapes.
package token
