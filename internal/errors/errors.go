package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrNotFound - the resource does not exist upstream (a reap trigger, not a failure)
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied - the credential was rejected
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput - the request was malformed; retrying unchanged will not help
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - the remote state disagreed with the request
	ErrConflict = errors.New("conflict")

	// ErrTransient - network failure, timeout or 5xx; retried on the next cycle
	ErrTransient = errors.New("transient error")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")
)
