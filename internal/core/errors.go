package core

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrInvalidTransition is returned when a guarded status update matched
	// no row because the job was not in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotReady          = errors.New("backup is not ready")
)
