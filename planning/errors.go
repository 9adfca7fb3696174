/*
errors.go - Centralized error types for the planning engine

PURPOSE:
  All error types in one place. The HTTP layer maps these to status codes
  through IsClientError / IsNotFound / IsForbidden, so handlers never
  inspect error strings.

ERROR CATEGORIES:
  1. Validation errors - bad input, illegal transitions, closed weeks
  2. Authorization errors - actor doesn't manage the store
  3. Lookup errors - missing rows
  4. Store errors - wrapped collaborator failures (everything else)

SEE ALSO:
  - api/handlers.go: statusForError maps these to HTTP codes
*/
package planning

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrStoreNotFound     = fmt.Errorf("store %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrWeekNotFound      = fmt.Errorf("week %w", ErrNotFound)
	ErrAmendmentNotFound = fmt.Errorf("amendment %w", ErrNotFound)

	// ErrInvalidTransition is returned when a status change is not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrWeekClosed is returned for writes against a closed week.
	ErrWeekClosed = errors.New("week is closed")

	// ErrForbidden is returned when the actor may not touch the target.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput covers malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadySubmitted is returned when a level is submitted twice.
	ErrAlreadySubmitted = errors.New("already submitted for this week")

	// ErrConflict is returned when a concurrent write got to the row first.
	// Retrying the request sees the committed state.
	ErrConflict = errors.New("conflicting concurrent write")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected amendment status change.
type TransitionError struct {
	AmendmentID string
	From        AmendmentStatus
	To          AmendmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("amendment %s: cannot move from %s to %s", e.AmendmentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// UnknownValueError is returned by the enum parsers.
type UnknownValueError struct {
	Kind  string
	Value string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

func (e *UnknownValueError) Unwrap() error { return ErrInvalidInput }

// AccessError explains why an actor was refused.
type AccessError struct {
	UserID  string
	StoreID string
	Reason  string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("user %s cannot act on store %s: %s", e.UserID, e.StoreID, e.Reason)
}

func (e *AccessError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrWeekClosed) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request lost a race with another write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrConflict)
}

// IsForbidden returns true if the actor lacks access.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
