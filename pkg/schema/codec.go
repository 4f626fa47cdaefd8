package schema

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/flowdhq/flowd/pkg/domain"
)

// Dump serializes a flow into its document form. The task list is
// sorted by id so equal flows dump to equal documents.
func Dump(f *domain.Flow) *FlowDocument {
	doc := &FlowDocument{
		ID:         f.ID,
		Name:       f.Name,
		Tags:       append([]string(nil), f.Tags...),
		Tasks:      make([]TaskDocument, 0, len(f.Tasks)),
		Edges:      make([]EdgeDocument, 0, len(f.Edges)),
		Parameters: f.Parameters(),
	}
	if doc.Parameters == nil {
		doc.Parameters = []domain.ParameterInfo{}
	}

	for _, task := range f.Tasks {
		doc.Tasks = append(doc.Tasks, TaskDocument{
			ID:         task.ID,
			Type:       taskTypeTag(f, task),
			Name:       task.Name,
			Slug:       task.Slug,
			Tags:       append([]string(nil), task.Tags...),
			Default:    task.Default,
			HasDefault: task.HasDefault,
		})
	}
	sort.Slice(doc.Tasks, func(i, j int) bool { return doc.Tasks[i].ID < doc.Tasks[j].ID })

	for _, e := range f.Edges {
		doc.Edges = append(doc.Edges, EdgeDocument{
			UpstreamID:   e.Upstream.ID,
			DownstreamID: e.Downstream.ID,
			Key:          e.Key,
			Mapped:       e.Mapped,
		})
	}

	for _, t := range f.ReferenceTasks {
		doc.ReferenceTasks = append(doc.ReferenceTasks, t.ID)
	}

	if len(f.TaskInfo) > 0 {
		doc.TaskInfo = make(map[string]TaskInfoDocument, len(f.TaskInfo))
		for id, info := range f.TaskInfo {
			doc.TaskInfo[id] = TaskInfoDocument{
				Type:   info.Type,
				Mapped: info.Mapped,
				Hints:  info.Hints,
			}
		}
	}

	doc.Schedule = dumpSchedule(f.Schedule)
	doc.Environment = dumpEnvironment(f.Environment)
	return doc
}

// taskTypeTag returns the variant tag to write for a task, keeping a
// foreign tag recorded in the flow's task info over the generic kind.
func taskTypeTag(f *domain.Flow, task *domain.Task) string {
	if info, ok := f.TaskInfo[task.ID]; ok && info.Type != "" {
		return info.Type
	}
	return string(task.Kind)
}

// Load materializes a flow from its document form. Every task id is
// resolved through one arena, so edges, reference tasks and the task
// set share instances. Dangling references and duplicate task ids are
// rejected.
func Load(doc *FlowDocument) (*domain.Flow, error) {
	f := &domain.Flow{
		ID:       doc.ID,
		Name:     doc.Name,
		Tags:     append([]string(nil), doc.Tags...),
		Tasks:    make(map[string]*domain.Task, len(doc.Tasks)),
		TaskInfo: make(map[string]domain.TaskInfo, len(doc.Tasks)),
	}

	arena := make(map[string]*domain.Task, len(doc.Tasks))
	for i, td := range doc.Tasks {
		if td.ID == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("tasks[%d].id", i), "task has no id")
		}
		if _, exists := arena[td.ID]; exists {
			return nil, domain.NewValidationError(fmt.Sprintf("tasks[%d].id", i), fmt.Sprintf("duplicate task id %s", td.ID))
		}
		task := &domain.Task{
			ID:         td.ID,
			Kind:       taskKindForTag(td.Type),
			Name:       td.Name,
			Slug:       td.Slug,
			Tags:       append([]string(nil), td.Tags...),
			Default:    td.Default,
			HasDefault: td.HasDefault,
		}
		if task.Slug == "" {
			task.Slug = task.ID
		}
		arena[td.ID] = task
		f.Tasks[td.ID] = task
		f.TaskInfo[td.ID] = domain.TaskInfo{Type: td.Type}
	}

	for i, ed := range doc.Edges {
		up, ok := arena[ed.UpstreamID]
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("edges[%d].upstream_id", i), fmt.Sprintf("unknown task id %s", ed.UpstreamID))
		}
		down, ok := arena[ed.DownstreamID]
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("edges[%d].downstream_id", i), fmt.Sprintf("unknown task id %s", ed.DownstreamID))
		}
		f.Edges = append(f.Edges, domain.Edge{Upstream: up, Downstream: down, Key: ed.Key, Mapped: ed.Mapped})
		if ed.Mapped {
			info := f.TaskInfo[down.ID]
			info.Mapped = true
			f.TaskInfo[down.ID] = info
		}
	}

	for i, id := range doc.ReferenceTasks {
		task, ok := arena[id]
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("reference_tasks[%d]", i), fmt.Sprintf("unknown task id %s", id))
		}
		f.ReferenceTasks = append(f.ReferenceTasks, task)
	}

	// Explicit task info overrides what the task list seeded, so tags
	// and hints written by other engines survive.
	for id, info := range doc.TaskInfo {
		if _, ok := arena[id]; !ok {
			return nil, domain.NewValidationError("task_info", fmt.Sprintf("unknown task id %s", id))
		}
		merged := f.TaskInfo[id]
		if info.Type != "" {
			merged.Type = info.Type
		}
		merged.Mapped = merged.Mapped || info.Mapped
		merged.Hints = info.Hints
		f.TaskInfo[id] = merged
	}

	f.Schedule = loadSchedule(doc.Schedule)
	f.Environment = loadEnvironment(doc.Environment)
	return f, nil
}

// taskKindForTag maps a document variant tag onto the kinds this engine
// implements. Foreign tags degrade to a plain task; the tag itself is
// preserved in task info.
func taskKindForTag(tag string) domain.TaskKind {
	if tag == string(domain.TaskKindParameter) {
		return domain.TaskKindParameter
	}
	return domain.TaskKindTask
}

func dumpSchedule(s *domain.Schedule) *ScheduleDocument {
	if s == nil {
		return nil
	}
	doc := &ScheduleDocument{
		Kind:  string(s.Kind),
		Cron:  s.Cron,
		Extra: s.Extra,
	}
	if !s.Anchor.IsZero() {
		anchor := s.Anchor
		doc.Anchor = &anchor
	}
	if s.Every > 0 {
		doc.EverySeconds = s.Every.Seconds()
	}
	return doc
}

func loadSchedule(doc *ScheduleDocument) *domain.Schedule {
	if doc == nil {
		return nil
	}
	s := &domain.Schedule{
		Kind:  domain.ScheduleKind(doc.Kind),
		Cron:  doc.Cron,
		Extra: doc.Extra,
	}
	if doc.Anchor != nil {
		s.Anchor = doc.Anchor.UTC()
	}
	if doc.EverySeconds > 0 {
		s.Every = time.Duration(doc.EverySeconds * float64(time.Second))
	}
	return s
}

func dumpEnvironment(e *domain.Environment) *EnvironmentDocument {
	if e == nil {
		return nil
	}
	return &EnvironmentDocument{Kind: e.Kind, Fields: e.Fields}
}

func loadEnvironment(doc *EnvironmentDocument) *domain.Environment {
	if doc == nil {
		return nil
	}
	return &domain.Environment{Kind: doc.Kind, Fields: doc.Fields}
}

// Marshal dumps a flow and encodes the document as JSON.
func Marshal(f *domain.Flow) ([]byte, error) {
	data, err := json.Marshal(Dump(f))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a JSON document and materializes the flow.
func Unmarshal(data []byte) (*domain.Flow, error) {
	var doc FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow document: %w", err)
	}
	return Load(&doc)
}

// MarshalDocument encodes an already-dumped document as JSON.
func MarshalDocument(doc *FlowDocument) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument decodes a JSON document without materializing it.
func UnmarshalDocument(data []byte) (*FlowDocument, error) {
	var doc FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow document: %w", err)
	}
	return &doc, nil
}
