package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdhq/flowd/pkg/domain"
)

func TestRunStore_CreateAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := domain.NewFlowRun("flow-1", domain.Pending())
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.StateTypePending, got.State.Type)
	assert.Equal(t, int64(0), got.Version)

	// A second create with the same id fails.
	assert.Error(t, store.CreateRun(ctx, run))

	_, err = store.GetRun(ctx, "missing")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestRunStore_GetReturnsIsolatedCopy(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := domain.NewFlowRun("flow-1", domain.Pending())
	run.Tags = []string{"nightly"}
	require.NoError(t, store.CreateRun(ctx, run))

	first, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	first.Tags[0] = "mutated"
	first.State = domain.Failed()

	second, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly"}, second.Tags)
	assert.Equal(t, domain.StateTypePending, second.State.Type)
}

func TestRunStore_UpdateRunBumpsVersion(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := domain.NewFlowRun("flow-1", domain.Pending())
	require.NoError(t, store.CreateRun(ctx, run))

	updated := run.Clone()
	updated.History = append(updated.History, updated.State)
	updated.State = domain.Running()
	require.NoError(t, store.UpdateRun(ctx, updated, 0))
	assert.Equal(t, int64(1), updated.Version)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, domain.StateTypeRunning, got.State.Type)
	require.Len(t, got.History, 1)
	assert.Equal(t, domain.StateTypePending, got.History[0].Type)
}

func TestRunStore_UpdateRunStaleVersion(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := domain.NewFlowRun("flow-1", domain.Pending())
	require.NoError(t, store.CreateRun(ctx, run))

	winner := run.Clone()
	winner.State = domain.Running()
	require.NoError(t, store.UpdateRun(ctx, winner, 0))

	// A writer still holding version 0 loses.
	loser := run.Clone()
	loser.State = domain.Cancelled()
	err := store.UpdateRun(ctx, loser, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	// The winner's write is intact.
	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateTypeRunning, got.State.Type)
	assert.Equal(t, int64(1), got.Version)
}

func TestRunStore_ListRunsFiltersKindAndSorts(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := domain.NewFlowRun("flow-1", domain.Pending())
	older.Created = base
	newer := domain.NewFlowRun("flow-1", domain.Pending())
	newer.Created = base.Add(time.Minute)
	taskRun := domain.NewTaskRun("flow-1", older.ID, "extract", domain.Pending())
	taskRun.Created = base

	require.NoError(t, store.CreateRun(ctx, newer))
	require.NoError(t, store.CreateRun(ctx, older))
	require.NoError(t, store.CreateRun(ctx, taskRun))

	flowRuns, err := store.ListRuns(ctx, domain.RunKindFlow)
	require.NoError(t, err)
	require.Len(t, flowRuns, 2)
	assert.Equal(t, older.ID, flowRuns[0].ID)
	assert.Equal(t, newer.ID, flowRuns[1].ID)

	taskRuns, err := store.ListRuns(ctx, domain.RunKindTask)
	require.NoError(t, err)
	require.Len(t, taskRuns, 1)
	assert.Equal(t, taskRun.ID, taskRuns[0].ID)
}
