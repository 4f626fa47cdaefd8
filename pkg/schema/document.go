package schema

import (
	"time"

	"github.com/flowdhq/flowd/pkg/domain"
)

// FlowDocument is the serialized form of a flow. Tasks appear once in
// Tasks; Edges and ReferenceTasks point into that list by id.
// Parameters is derived from the task set on dump and recomputed on
// load, so readers get the parameter view without walking the graph.
type FlowDocument struct {
	ID             string                      `json:"id"`
	Name           string                      `json:"name"`
	Tags           []string                    `json:"tags,omitempty"`
	Schedule       *ScheduleDocument           `json:"schedule,omitempty"`
	Environment    *EnvironmentDocument        `json:"environment,omitempty"`
	Tasks          []TaskDocument              `json:"tasks"`
	Edges          []EdgeDocument              `json:"edges"`
	ReferenceTasks []string                    `json:"reference_tasks,omitempty"`
	TaskInfo       map[string]TaskInfoDocument `json:"task_info,omitempty"`
	Parameters     []domain.ParameterInfo      `json:"parameters"`
}

// TaskDocument is one task node. Type is the variant tag; readers that
// do not recognize it fall back to a plain task.
type TaskDocument struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Name       string   `json:"name"`
	Slug       string   `json:"slug,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Default    any      `json:"default,omitempty"`
	HasDefault bool     `json:"has_default,omitempty"`
}

// EdgeDocument is one dependency, referencing its endpoints by task id.
type EdgeDocument struct {
	UpstreamID   string `json:"upstream_id"`
	DownstreamID string `json:"downstream_id"`
	Key          string `json:"key,omitempty"`
	Mapped       bool   `json:"mapped,omitempty"`
}

// TaskInfoDocument mirrors domain.TaskInfo on the wire.
type TaskInfoDocument struct {
	Type   string         `json:"type"`
	Mapped bool           `json:"mapped"`
	Hints  map[string]any `json:"hints,omitempty"`
}

// ScheduleDocument is the wire form of a schedule. Intervals travel as
// float seconds.
type ScheduleDocument struct {
	Kind         string         `json:"kind"`
	Cron         string         `json:"cron,omitempty"`
	Anchor       *time.Time     `json:"anchor,omitempty"`
	EverySeconds float64        `json:"every_seconds,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// EnvironmentDocument is the wire form of an environment bag.
type EnvironmentDocument struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}
