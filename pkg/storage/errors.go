package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAuthFailed         = errors.New("authentication failed")
	ErrConnFailed         = errors.New("connection failed")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotFound           = errors.New("object not found")
	ErrTimeout            = errors.New("operation timeout")
	ErrThrottled          = errors.New("request throttled")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrReadOnly           = errors.New("storage is read-only")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrBucketExists       = errors.New("bucket already exists")
	ErrInvalidKey         = errors.New("invalid key")
	ErrCorruptObject      = errors.New("corrupt object")
)

// IsRetryable returns true if error should trigger a retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrThrottled)
}

// IsCritical returns true if error should stop all operations
func IsCritical(err error) bool {
	return errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, context.Canceled)
}

// WrapError adds context to an error
func WrapError(backend, operation string, err error) error {
	return fmt.Errorf("%s (%s): %w", operation, backend, err)
}
