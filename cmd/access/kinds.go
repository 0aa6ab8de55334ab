package access

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyRequests = errors.New("too_many_requests")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
)
