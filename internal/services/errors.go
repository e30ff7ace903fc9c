package services

import "errors"

// Errors shared across services. Handlers map these to HTTP statuses.
var (
	// ErrValidation marks bad input from the caller.
	ErrValidation = errors.New("input validation failed")

	// ErrNotAuthorized marks an authenticated caller touching a resource
	// it does not own.
	ErrNotAuthorized = errors.New("not authorized")
)
