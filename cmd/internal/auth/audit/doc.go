// Package audit fans authentication attempt rows out to downstream consumers.
//
// The relational attempt log stays the system of record. Publishers here are
// best effort: a failed publish is logged by the caller and never changes the
// outcome of a request-code or verify-code call.
package audit
