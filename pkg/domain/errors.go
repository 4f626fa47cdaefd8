package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the application and adapter layers.
var (
	// ErrNotFound reports a missing flow or run.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict reports a compare-and-swap failure on a run
	// update. Callers reload the run and retry.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnknownScheduleKind reports a schedule whose kind has no
	// implementation.
	ErrUnknownScheduleKind = errors.New("unknown schedule kind")
)

// ConstraintViolation reports a state transition rejected by the
// transition policy. The run is left unchanged.
type ConstraintViolation struct {
	RunID    string
	Current  StateType
	Proposed StateType
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected for run %s", e.Current, e.Proposed, e.RunID)
}

// IsConstraintViolation reports whether err is a ConstraintViolation.
func IsConstraintViolation(err error) bool {
	var cv *ConstraintViolation
	return errors.As(err, &cv)
}

// ValidationError reports malformed input: an invalid state, a
// malformed flow document, an out-of-range aggregation request.
type ValidationError struct {
	Ref    string
	Reason string
}

// NewValidationError builds a ValidationError for the field or
// document element named by ref.
func NewValidationError(ref, reason string) *ValidationError {
	return &ValidationError{Ref: ref, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Ref == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Ref, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a missing entity by kind and id. It unwraps to
// ErrNotFound so callers can match either form.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFoundError builds a NotFoundError for the given entity.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Unwrap makes errors.Is(err, ErrNotFound) hold for NotFoundError.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IntegrityError reports stored data that breaks a structural
// invariant, such as a SCHEDULED state persisted without its scheduled
// time.
type IntegrityError struct {
	RunID  string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("run %s: %s", e.RunID, e.Reason)
}

// IsIntegrityError reports whether err is an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
