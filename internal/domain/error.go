package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrStorageRead         = errors.New("storage read failed")
	ErrStorageWrite        = errors.New("storage write failed")
	ErrExternalService     = errors.New("external service failed")
	ErrUnsupportedSchema   = errors.New("unsupported record schema version")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrLockNotAcquired     = errors.New("lock not acquired")
)
