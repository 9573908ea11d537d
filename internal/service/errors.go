package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Business rule failures. The messages are returned to API clients as-is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("Insufficient inventory")
	ErrSoldOut               = errors.New("No more tickets available")
	ErrRaffleInactive        = errors.New("Raffle is not active")
)

// NotFoundError names the entity that was looked up. It matches ErrNotFound
// under errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps an unexpected failure of the backing store. Message is
// safe to show to clients; Err is only logged.
type StoreError struct {
	Message string
	Err     error
}

func (e *StoreError) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// isDomainError reports whether err belongs to the typed business taxonomy
// and can be handed to the caller unchanged.
func isDomainError(err error) bool {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientInventory),
		errors.Is(err, ErrSoldOut),
		errors.Is(err, ErrRaffleInactive):
		return true
	}
	return false
}
