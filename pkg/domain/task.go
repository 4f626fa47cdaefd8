package domain

import (
	"github.com/google/uuid"
)

// TaskKind distinguishes plain tasks from parameters in the flow graph.
type TaskKind string

const (
	TaskKindTask      TaskKind = "Task"
	TaskKindParameter TaskKind = "Parameter"
)

// Task is a node in a flow graph. Tasks are compared by pointer: two
// edges that reference the same node hold the same *Task, and the
// serialization layer preserves that sharing across a dump/load round
// trip.
type Task struct {
	ID   string
	Kind TaskKind
	Name string
	// Slug is the task's stable key within its flow. Defaults to the
	// task id when the author does not set one.
	Slug string
	Tags []string

	// Parameter fields. Default is only meaningful when HasDefault is
	// set; a parameter without a default is required.
	Default    any
	HasDefault bool
}

// NewTask returns a plain task with a fresh id.
func NewTask(name string) *Task {
	id := uuid.NewString()
	return &Task{
		ID:   id,
		Kind: TaskKindTask,
		Name: name,
		Slug: id,
	}
}

// NewParameter returns a required parameter task.
func NewParameter(name string) *Task {
	t := NewTask(name)
	t.Kind = TaskKindParameter
	return t
}

// NewParameterWithDefault returns an optional parameter task carrying a
// default value.
func NewParameterWithDefault(name string, def any) *Task {
	t := NewParameter(name)
	t.Default = def
	t.HasDefault = true
	return t
}

// IsParameter reports whether the task is a parameter node.
func (t *Task) IsParameter() bool {
	return t.Kind == TaskKindParameter
}

// Required reports whether the task is a parameter with no default.
func (t *Task) Required() bool {
	return t.IsParameter() && !t.HasDefault
}

// Edge is a directed dependency between two tasks. Key names the
// downstream input fed by the upstream result; Mapped marks fan-out
// edges where the downstream task runs once per element of the
// upstream result.
type Edge struct {
	Upstream   *Task
	Downstream *Task
	Key        string
	Mapped     bool
}

// ParameterInfo is the read-only view of one flow parameter.
type ParameterInfo struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// TaskInfo carries per-task metadata that survives serialization even
// when the task's concrete variant is unknown to the reader: the
// variant tag itself, the mapped flag, and any extra hints the author
// attached.
type TaskInfo struct {
	Type   string         `json:"type"`
	Mapped bool           `json:"mapped"`
	Hints  map[string]any `json:"hints,omitempty"`
}
