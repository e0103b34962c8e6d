package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrDuplicateSession = errors.New("session already active")
)

// ValidationError marks a malformed input event. Events carrying one are
// dropped and reported, never retried at this layer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: field %q %s", e.Field, e.Reason)
}

// StorageError wraps a persistence failure. The corresponding append is
// rolled back; callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
