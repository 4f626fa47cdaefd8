package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Flow is an authored task graph plus its metadata. Tasks are held
// once, keyed by id; edges and reference tasks point into that set so
// node identity survives graph manipulation and serialization.
type Flow struct {
	ID          string
	Name        string
	Tags        []string
	Schedule    *Schedule
	Environment *Environment

	Tasks          map[string]*Task
	Edges          []Edge
	ReferenceTasks []*Task
	TaskInfo       map[string]TaskInfo
}

// NewFlow returns an empty flow with a fresh id.
func NewFlow(name string) *Flow {
	return &Flow{
		ID:       uuid.NewString(),
		Name:     name,
		Tasks:    make(map[string]*Task),
		TaskInfo: make(map[string]TaskInfo),
	}
}

// AddTask inserts t into the flow. Adding a task whose id is already
// present is a no-op returning the existing node, so repeated adds and
// edge wiring converge on one instance per id.
func (f *Flow) AddTask(t *Task) (*Task, error) {
	if t == nil {
		return nil, NewValidationError("task", "nil task")
	}
	if t.ID == "" {
		return nil, NewValidationError("task.id", "task has no id")
	}
	if existing, ok := f.Tasks[t.ID]; ok {
		return existing, nil
	}
	if t.Slug == "" {
		t.Slug = t.ID
	}
	f.Tasks[t.ID] = t
	if f.TaskInfo == nil {
		f.TaskInfo = make(map[string]TaskInfo)
	}
	if _, ok := f.TaskInfo[t.ID]; !ok {
		f.TaskInfo[t.ID] = TaskInfo{Type: string(t.Kind)}
	}
	return t, nil
}

// AddEdge wires a dependency from upstream to downstream, adding either
// endpoint to the flow if it is not yet a member. A duplicate
// (upstream, downstream, key) triple is rejected. Mapped edges mark the
// downstream task's info as mapped.
func (f *Flow) AddEdge(upstream, downstream *Task, key string, mapped bool) error {
	up, err := f.AddTask(upstream)
	if err != nil {
		return fmt.Errorf("failed to add upstream task: %w", err)
	}
	down, err := f.AddTask(downstream)
	if err != nil {
		return fmt.Errorf("failed to add downstream task: %w", err)
	}
	for _, e := range f.Edges {
		if e.Upstream == up && e.Downstream == down && e.Key == key {
			return NewValidationError("edge", fmt.Sprintf("duplicate edge %s -> %s (key %q)", up.ID, down.ID, key))
		}
	}
	f.Edges = append(f.Edges, Edge{Upstream: up, Downstream: down, Key: key, Mapped: mapped})
	if mapped {
		info := f.TaskInfo[down.ID]
		info.Mapped = true
		f.TaskInfo[down.ID] = info
	}
	return nil
}

// SetReferenceTasks designates the tasks whose terminal states decide
// the flow run's final state. Every reference task must already belong
// to the flow.
func (f *Flow) SetReferenceTasks(tasks []*Task) error {
	for _, t := range tasks {
		if t == nil {
			return NewValidationError("reference_tasks", "nil task")
		}
		if member, ok := f.Tasks[t.ID]; !ok || member != t {
			return NewValidationError("reference_tasks", fmt.Sprintf("task %s is not part of the flow", t.ID))
		}
	}
	f.ReferenceTasks = tasks
	return nil
}

// Parameters returns the flow's parameter tasks as a stable,
// name-sorted view.
func (f *Flow) Parameters() []ParameterInfo {
	var params []ParameterInfo
	for _, t := range f.Tasks {
		if !t.IsParameter() {
			continue
		}
		params = append(params, ParameterInfo{
			Name:     t.Name,
			Required: t.Required(),
			Default:  t.Default,
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// Validate checks the flow's structural invariants: a name, edge
// endpoints that belong to the task set, and a valid schedule when one
// is attached.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return NewValidationError("flow.name", "flow has no name")
	}
	for _, e := range f.Edges {
		if e.Upstream == nil || e.Downstream == nil {
			return NewValidationError("flow.edges", "edge with nil endpoint")
		}
		if member, ok := f.Tasks[e.Upstream.ID]; !ok || member != e.Upstream {
			return NewValidationError("flow.edges", fmt.Sprintf("edge upstream %s is not part of the flow", e.Upstream.ID))
		}
		if member, ok := f.Tasks[e.Downstream.ID]; !ok || member != e.Downstream {
			return NewValidationError("flow.edges", fmt.Sprintf("edge downstream %s is not part of the flow", e.Downstream.ID))
		}
	}
	if f.Schedule != nil {
		if err := f.Schedule.Validate(); err != nil {
			return fmt.Errorf("failed to validate schedule: %w", err)
		}
	}
	return nil
}
