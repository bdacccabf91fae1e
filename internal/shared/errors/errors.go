package errors

import "errors"

// Domain errors
var (
	// Scan errors
	ErrValidation  = errors.New("invalid scan target")
	ErrRateLimited = errors.New("rate limited")
	ErrProbe       = errors.New("probe failed")
	ErrPersistence = errors.New("event log operation failed")

	// Target errors
	ErrBadScheme   = errors.New("target must start with http:// or https://")
	ErrBadHostname = errors.New("target hostname must contain a valid top-level domain")
	ErrEmptyTarget = errors.New("target cannot be empty")
)
