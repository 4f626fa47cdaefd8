package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowdhq/flowd/pkg/domain"
)

// RunStore implements RunStore using an in-memory map
type RunStore struct {
	runs map[string]*domain.Run
	mu   sync.RWMutex
}

// NewRunStore creates a new in-memory run store
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.Run),
	}
}

// CreateRun stores a new run at version 0 (ports.RunStore interface)
func (s *RunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	stored := run.Clone()
	stored.Version = 0
	s.runs[run.ID] = stored
	run.Version = 0
	return nil
}

// GetRun retrieves a run by id (ports.RunStore interface)
func (s *RunStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("run", id)
	}

	return run.Clone(), nil
}

// UpdateRun replaces a run if the stored version still matches
// (ports.RunStore interface)
func (s *RunStore) UpdateRun(ctx context.Context, run *domain.Run, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return domain.NewNotFoundError("run", run.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("run %s at version %d, expected %d: %w",
			run.ID, stored.Version, expectedVersion, domain.ErrVersionConflict)
	}

	next := run.Clone()
	next.Version = expectedVersion + 1
	s.runs[run.ID] = next
	run.Version = next.Version
	return nil
}

// ListRuns returns a snapshot of all runs of a kind, ordered by
// creation time (ports.RunStore interface)
func (s *RunStore) ListRuns(ctx context.Context, kind domain.RunKind) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if run.Kind != kind {
			continue
		}
		runs = append(runs, run.Clone())
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Created.Equal(runs[j].Created) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].Created.Before(runs[j].Created)
	})

	return runs, nil
}

// Close releases resources (ports.RunStore interface)
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]*domain.Run)
	return nil
}
