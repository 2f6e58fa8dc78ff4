package models

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Lookup errors (404)
	ErrTourNotFound    = errors.New("tour not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrUserNotFound    = errors.New("user not found")

	// Request errors (400)
	ErrInvalidRequest = errors.New("invalid request")

	// Admission errors
	ErrCapacityExceeded        = errors.New("capacity exceeded")
	ErrBookingAlreadyCancelled = errors.New("booking already cancelled")
	ErrBookingForbidden        = errors.New("booking belongs to another user")

	// Infrastructure errors (safe to retry)
	ErrTransientStore = errors.New("transient store error")
)

// IsNotFound reports whether err is one of the lookup errors
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTourNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// InvalidRequestf builds an ErrInvalidRequest with a message
func InvalidRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// CapacityExceededError is returned when admitting a party would push the
// committed demand for a tour/date above the tour's capacity.
type CapacityExceededError struct {
	TourRef   string
	DateKey   DateKey
	Requested int
	Verdict   AvailabilityVerdict
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for tour %s on %s: requested %d, can accept %d of %d",
		e.TourRef, e.DateKey, e.Requested, e.Verdict.CanAccept, e.Verdict.Capacity)
}

// Is makes errors.Is(err, ErrCapacityExceeded) match
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// StoreError wraps an infrastructure failure from the backing store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransientStore) match
func (e *StoreError) Is(target error) bool {
	return target == ErrTransientStore
}

// Transient marks err as a retryable store failure for operation op
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
