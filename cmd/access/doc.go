// Package access implements accessgate's one-time-code domain.
//
// It contains the AccessCode, Session and AttemptLog records with their pure
// state transitions, phone normalization, the error kinds shared by every
// layer, and the Store boundary with Postgres and in-memory implementations.
//
// Plain codes and raw session tokens never enter this package; callers hand
// over hashes only.
package access
