package secret

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptySecret   = errors.New("empty secret")
	ErrSecretTooLong = errors.New("secret too long")
	ErrInvalidHash   = errors.New("invalid secret hash")
	ErrConfig        = errors.New("invalid secret hasher config")
)
