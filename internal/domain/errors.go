package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error leaving the domain, db and messaging
// packages matches exactly one of these with errors.Is.
var (
	// ErrValidation marks bad input rejected before any write
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced policy or claim that does not exist
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a store or channel that is temporarily unavailable
	ErrTransient = errors.New("transient infrastructure error")

	// ErrPermanent marks processing that can never succeed, like a malformed event
	ErrPermanent = errors.New("permanent processing error")
)

var (
	// ErrInvalidPolicy is returned when the policy is unknown or not owned by the member
	ErrInvalidPolicy = errors.New("invalid policy for member")

	// ErrInvalidAmount is returned when the amount is negative or not a currency value
	ErrInvalidAmount = errors.New("invalid amount: must be non-negative with at most 2 decimal places")

	// ErrMissingField is returned when a required claim field is empty
	ErrMissingField = errors.New("missing required field")

	// ErrClaimNotFound is returned when a claim doesn't exist
	ErrClaimNotFound = fmt.Errorf("claim %w", ErrNotFound)

	// ErrPersistence is returned when the claim could not be stored; nothing was committed
	ErrPersistence = errors.New("persistence failure")

	// ErrPublish marks a claim that was stored but not handed to the broker
	ErrPublish = errors.New("publish failure")
)

// ValidationError describes which field failed validation and why.
type ValidationError struct {
	Reason error  // One of ErrInvalidPolicy, ErrInvalidAmount, ErrMissingField
	Field  string // Offending request field
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

// Unwrap exposes both the specific reason and the ErrValidation category.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Reason, ErrValidation}
}

func newValidationError(reason error, field string) error {
	return &ValidationError{Reason: reason, Field: field}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
