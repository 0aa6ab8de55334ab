package access

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind MUST be one of the sentinel kinds. Msg is internal context and may be
// logged, but it must never carry a code or token.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness violation or a stale snapshot for a logical field.
// Field is a stable name: "token_hash", "access_code", ...
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidRequest, Msg: msg}
}

// IsInvalidRequest reports whether err represents ErrInvalidRequest.
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }

// IsUnauthorized reports whether err represents ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsTooManyRequests reports whether err represents ErrTooManyRequests.
func IsTooManyRequests(err error) bool { return errors.Is(err, ErrTooManyRequests) }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err represents ErrConflict (including ConflictError).
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
