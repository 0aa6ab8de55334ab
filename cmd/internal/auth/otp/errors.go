package otp

import "errors"

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid otp config")
