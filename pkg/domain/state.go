package domain

import (
	"time"
)

// StateType classifies a run state.
type StateType string

const (
	StateTypeScheduled StateType = "SCHEDULED"
	StateTypePending   StateType = "PENDING"
	StateTypeRunning   StateType = "RUNNING"
	StateTypeCompleted StateType = "COMPLETED"
	StateTypeFailed    StateType = "FAILED"
	StateTypeCancelled StateType = "CANCELLED"
)

// stateTypeNames maps each type to its canonical display name.
var stateTypeNames = map[StateType]string{
	StateTypeScheduled: "Scheduled",
	StateTypePending:   "Pending",
	StateTypeRunning:   "Running",
	StateTypeCompleted: "Completed",
	StateTypeFailed:    "Failed",
	StateTypeCancelled: "Cancelled",
}

// Valid reports whether t is one of the known state types.
func (t StateType) Valid() bool {
	_, ok := stateTypeNames[t]
	return ok
}

// Terminal reports whether t ends a run. Terminal runs only leave their
// state through a forced transition.
func (t StateType) Terminal() bool {
	switch t {
	case StateTypeCompleted, StateTypeFailed, StateTypeCancelled:
		return true
	}
	return false
}

// DisplayName returns the canonical human-readable name for t.
func (t StateType) DisplayName() string {
	if name, ok := stateTypeNames[t]; ok {
		return name
	}
	return string(t)
}

// State is an immutable, timestamped status record attached to a run.
//
// Name defaults to the type's canonical display name but may be
// overridden (e.g. a SCHEDULED state named "Late"); the history
// aggregation keys on the (Type, Name) pair. ScheduledTime is present
// only for SCHEDULED states and records when the run is due.
type State struct {
	Type          StateType  `json:"type"`
	Name          string     `json:"name"`
	Timestamp     time.Time  `json:"timestamp"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// NewState returns a state of the given type with the canonical name
// and the current UTC time.
func NewState(t StateType) State {
	return State{
		Type:      t,
		Name:      t.DisplayName(),
		Timestamp: time.Now().UTC(),
	}
}

// Scheduled returns a SCHEDULED state due at scheduledTime.
func Scheduled(scheduledTime time.Time) State {
	s := NewState(StateTypeScheduled)
	st := scheduledTime.UTC()
	s.ScheduledTime = &st
	return s
}

// Late returns a SCHEDULED state named "Late", marking a run whose
// scheduled start has passed without the run starting.
func Late(scheduledTime time.Time) State {
	s := Scheduled(scheduledTime)
	s.Name = "Late"
	return s
}

// Pending returns a PENDING state.
func Pending() State { return NewState(StateTypePending) }

// Running returns a RUNNING state.
func Running() State { return NewState(StateTypeRunning) }

// Completed returns a COMPLETED state.
func Completed() State { return NewState(StateTypeCompleted) }

// Failed returns a FAILED state.
func Failed() State { return NewState(StateTypeFailed) }

// Cancelled returns a CANCELLED state.
func Cancelled() State { return NewState(StateTypeCancelled) }

// WithMessage returns a copy of s carrying the given message.
func (s State) WithMessage(msg string) State {
	s.Message = msg
	return s
}

// Terminal reports whether the state's type is terminal.
func (s State) Terminal() bool {
	return s.Type.Terminal()
}

// Validate checks the invariants a state must satisfy before it is
// attached to a run: a known type, and a scheduled time present exactly
// when the type is SCHEDULED.
func (s State) Validate() error {
	if !s.Type.Valid() {
		return NewValidationError("state.type", "unknown state type: "+string(s.Type))
	}
	if s.Type == StateTypeScheduled && s.ScheduledTime == nil {
		return NewValidationError("state.scheduled_time", "SCHEDULED state requires a scheduled time")
	}
	if s.Type != StateTypeScheduled && s.ScheduledTime != nil {
		return NewValidationError("state.scheduled_time", "scheduled time is only valid on SCHEDULED states")
	}
	return nil
}

// Normalized fills defaulted fields: the canonical name when none is
// given, and the supplied timestamp when the state carries none.
func (s State) Normalized(now time.Time) State {
	if s.Name == "" {
		s.Name = s.Type.DisplayName()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	return s
}
