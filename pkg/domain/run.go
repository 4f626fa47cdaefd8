package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunKind distinguishes flow runs from task runs.
type RunKind string

const (
	RunKindFlow RunKind = "flow"
	RunKindTask RunKind = "task"
)

// Run is one execution of a flow or of a task within a flow run. Its
// State is the current status; History holds every state the run held
// before, oldest first. Version counts committed updates and backs the
// ledger's compare-and-swap writes.
type Run struct {
	ID        string    `json:"id"`
	Kind      RunKind   `json:"kind"`
	FlowID    string    `json:"flow_id"`
	FlowRunID string    `json:"flow_run_id,omitempty"`
	TaskKey   string    `json:"task_key,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	State     State     `json:"state"`
	History   []State   `json:"history,omitempty"`
	Created   time.Time `json:"created"`
	Version   int64     `json:"version"`
}

// NewFlowRun returns a flow run in the given initial state.
func NewFlowRun(flowID string, initial State) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Kind:    RunKindFlow,
		FlowID:  flowID,
		State:   initial,
		Created: time.Now().UTC(),
	}
}

// NewTaskRun returns a task run under flowRunID for the task identified
// by taskKey.
func NewTaskRun(flowID, flowRunID, taskKey string, initial State) *Run {
	r := NewFlowRun(flowID, initial)
	r.Kind = RunKindTask
	r.FlowRunID = flowRunID
	r.TaskKey = taskKey
	return r
}

// Clone returns a deep copy of the run. Stores hand out clones so
// callers can mutate freely without racing the stored record.
func (r *Run) Clone() *Run {
	c := *r
	if r.Tags != nil {
		c.Tags = make([]string, len(r.Tags))
		copy(c.Tags, r.Tags)
	}
	if r.History != nil {
		c.History = make([]State, len(r.History))
		copy(c.History, r.History)
	}
	return &c
}

// stateSequence returns the run's full state sequence, history plus
// current, oldest first.
func (r *Run) stateSequence() []State {
	seq := make([]State, 0, len(r.History)+1)
	seq = append(seq, r.History...)
	seq = append(seq, r.State)
	return seq
}

// StartTime returns the timestamp of the run's first RUNNING state, or
// false when the run has not started.
func (r *Run) StartTime() (time.Time, bool) {
	for _, s := range r.stateSequence() {
		if s.Type == StateTypeRunning {
			return s.Timestamp, true
		}
	}
	return time.Time{}, false
}

// ExpectedStartTime returns when the run was supposed to start: the
// scheduled time of its most recent SCHEDULED state, or failing that
// the timestamp of its first PENDING state, or failing that the
// timestamp of its first state.
func (r *Run) ExpectedStartTime() (time.Time, bool) {
	seq := r.stateSequence()
	for i := len(seq) - 1; i >= 0; i-- {
		if seq[i].Type == StateTypeScheduled && seq[i].ScheduledTime != nil {
			return *seq[i].ScheduledTime, true
		}
	}
	for _, s := range seq {
		if s.Type == StateTypePending {
			return s.Timestamp, true
		}
	}
	if len(seq) > 0 {
		return seq[0].Timestamp, true
	}
	return time.Time{}, false
}

// EstimatedRunTime returns how long the run has spent in its latest
// RUNNING state: the gap to the following state, or to now while
// RUNNING is still current. Runs that never ran report zero.
func (r *Run) EstimatedRunTime(now time.Time) time.Duration {
	seq := r.stateSequence()
	last := -1
	for i, s := range seq {
		if s.Type == StateTypeRunning {
			last = i
		}
	}
	if last < 0 {
		return 0
	}
	end := now
	if last+1 < len(seq) {
		end = seq[last+1].Timestamp
	}
	d := end.Sub(seq[last].Timestamp)
	if d < 0 {
		return 0
	}
	return d
}

// EstimatedLateness returns how far past its expected start the run
// began, or has waited so far if it has not begun. Runs that started
// early or on time report zero.
func (r *Run) EstimatedLateness(now time.Time) time.Duration {
	expected, ok := r.ExpectedStartTime()
	if !ok {
		return 0
	}
	actual, started := r.StartTime()
	if !started {
		actual = now
	}
	d := actual.Sub(expected)
	if d < 0 {
		return 0
	}
	return d
}
