package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	storagemem "github.com/flowdhq/flowd/pkg/adapters/storage/memory"
	"github.com/flowdhq/flowd/pkg/domain"
)

// noopMetrics satisfies the collector without a backend
type noopMetrics struct {
	historyRequests int
	lastBuckets     int
}

func (m *noopMetrics) RecordRunCreated(kind domain.RunKind, stateType domain.StateType)      {}
func (m *noopMetrics) RecordTransitionApplied(kind domain.RunKind, from, to domain.StateType, forced bool) {
}
func (m *noopMetrics) RecordTransitionRejected(kind domain.RunKind, from, to domain.StateType) {}
func (m *noopMetrics) RecordVersionConflict(kind domain.RunKind)                               {}
func (m *noopMetrics) RecordRunDuration(kind domain.RunKind, duration time.Duration)           {}
func (m *noopMetrics) RecordLateRun()                                                          {}
func (m *noopMetrics) RecordHistoryRequest(kind domain.RunKind, buckets int, duration time.Duration) {
	m.historyRequests++
	m.lastBuckets = buckets
}
func (m *noopMetrics) SetActiveRuns(kind domain.RunKind, count int) {}
func (m *noopMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {}

func newTestAggregator(t *testing.T, now time.Time) (*Aggregator, *storagemem.RunStore, *noopMetrics) {
	t.Helper()
	store := storagemem.NewRunStore()
	metrics := &noopMetrics{}
	a := NewAggregator(store, metrics, zap.NewNop())
	a.now = func() time.Time { return now }
	return a, store, metrics
}

func stateAt(typ domain.StateType, ts time.Time) domain.State {
	return domain.State{Type: typ, Name: typ.DisplayName(), Timestamp: ts}
}

func scheduledAt(due, ts time.Time) domain.State {
	s := stateAt(domain.StateTypeScheduled, ts)
	s.ScheduledTime = &due
	return s
}

func addFlowRun(t *testing.T, store *storagemem.RunStore, state domain.State, history ...domain.State) *domain.Run {
	t.Helper()
	run := domain.NewFlowRun("flow-1", state)
	run.History = history
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func TestAggregator_GridShapes(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a, _, _ := newTestAggregator(t, now)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		window   time.Duration
		interval time.Duration
		buckets  int
	}{
		{"two weeks daily", 14 * 24 * time.Hour, 24 * time.Hour, 14},
		{"ten days by twenty-five hours", 10 * 24 * time.Hour, 25 * time.Hour, 10},
		{"ten days by six hours", 10 * 24 * time.Hour, 6 * time.Hour, 40},
		{"ten days hourly", 10 * 24 * time.Hour, time.Hour, 240},
		{"one day by sixty-six minutes", 24 * time.Hour, 66 * time.Minute, 22},
		{"five hours by minute", 5 * time.Hour, time.Minute, 300},
		{"twenty-nine hours by quarter hour", 29 * time.Hour, 15 * time.Minute, 116},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets, err := a.History(context.Background(), domain.RunKindFlow, Request{
				Start:    start,
				End:      start.Add(tt.window),
				Interval: tt.interval,
			})
			require.NoError(t, err)
			require.Len(t, buckets, tt.buckets)

			assert.Equal(t, start, buckets[0].IntervalStart)
			for i, b := range buckets {
				assert.Equal(t, start.Add(time.Duration(i)*tt.interval), b.IntervalStart)
				assert.Equal(t, b.IntervalStart.Add(tt.interval), b.IntervalEnd)
				assert.NotNil(t, b.States)
				assert.Empty(t, b.States)
			}
		})
	}
}

func TestAggregator_GridIsCapped(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a, _, metrics := newTestAggregator(t, now)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	buckets, err := a.History(context.Background(), domain.RunKindFlow, Request{
		Start:    start,
		End:      start.Add(1000 * time.Hour),
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, buckets, MaxBuckets)

	// The cap keeps the first buckets of the window.
	assert.Equal(t, start, buckets[0].IntervalStart)
	assert.Equal(t, start.Add(500*time.Hour), buckets[MaxBuckets-1].IntervalEnd)
	assert.Equal(t, MaxBuckets, metrics.lastBuckets)
}

func TestAggregator_LastBucketOverhangsEnd(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := day.Add(5 * 24 * time.Hour)
	a, store, _ := newTestAggregator(t, now)

	// Inside the first bucket.
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, day.Add(30*time.Minute)))
	// Past the requested end but inside the final bucket's full width.
	included := addFlowRun(t, store, stateAt(domain.StateTypeCompleted, day.Add(36*time.Hour)))
	// Past the final bucket.
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, day.Add(49*time.Hour)))

	buckets, err := a.History(context.Background(), domain.RunKindFlow, Request{
		Start:    day,
		End:      day.Add(24*time.Hour + 30*time.Minute),
		Interval: 24 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, day.Add(48*time.Hour), buckets[1].IntervalEnd)

	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, 1, buckets[0].States[0].CountRuns)

	require.Len(t, buckets[1].States, 1)
	assert.Equal(t, 1, buckets[1].States[0].CountRuns)
	_ = included
}

func TestAggregator_WindowValidation(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a, _, _ := newTestAggregator(t, now)
	ctx := context.Background()

	_, err := a.History(ctx, domain.RunKindFlow, Request{
		Start:    now,
		End:      now.Add(time.Hour),
		Interval: 500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	// A window that ends where it starts has no buckets.
	buckets, err := a.History(ctx, domain.RunKindFlow, Request{
		Start:    now,
		End:      now,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, buckets)

	buckets, err = a.History(ctx, domain.RunKindFlow, Request{
		Start:    now,
		End:      now.Add(-time.Hour),
		Interval: time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestAggregator_BinsAndSums(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, store, _ := newTestAggregator(t, now)
	at := func(hour, min int) time.Time {
		return time.Date(2024, 6, 1, hour, min, 0, 0, time.UTC)
	}

	// Bucket 0 [08:00, 09:00): two finished runs.
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, at(8, 40)),
		stateAt(domain.StateTypePending, at(8, 5)),
		stateAt(domain.StateTypeRunning, at(8, 10)))
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, at(8, 50)),
		stateAt(domain.StateTypePending, at(8, 0)),
		stateAt(domain.StateTypeRunning, at(8, 20)))

	// Bucket 1 [09:00, 10:00): still running, 5 minutes late.
	addFlowRun(t, store, stateAt(domain.StateTypeRunning, at(9, 35)),
		scheduledAt(at(9, 30), at(9, 0)),
		stateAt(domain.StateTypePending, at(9, 25)))

	// Bucket 2 [10:00, 11:00): marked late, binned by its due time.
	lateState := scheduledAt(at(10, 15), at(10, 30))
	lateState.Name = "Late"
	addFlowRun(t, store, lateState, scheduledAt(at(10, 15), at(10, 0)))

	// Bucket 4 [12:00, 13:00): due in the future, not yet late.
	addFlowRun(t, store, scheduledAt(at(12, 30), at(11, 0)))

	// Before the window.
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, at(7, 59)))

	buckets, err := a.History(context.Background(), domain.RunKindFlow, Request{
		Start:    at(8, 0),
		End:      at(13, 0),
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 5)

	b0 := buckets[0]
	require.Len(t, b0.States, 1)
	assert.Equal(t, domain.StateTypeCompleted, b0.States[0].StateType)
	assert.Equal(t, 2, b0.States[0].CountRuns)
	assert.Equal(t, 60*time.Minute, b0.States[0].SumEstimatedRunTime)
	assert.Equal(t, 25*time.Minute, b0.States[0].SumEstimatedLateness)

	b1 := buckets[1]
	require.Len(t, b1.States, 1)
	assert.Equal(t, domain.StateTypeRunning, b1.States[0].StateType)
	assert.Equal(t, 1, b1.States[0].CountRuns)
	assert.Equal(t, 2*time.Hour+25*time.Minute, b1.States[0].SumEstimatedRunTime)
	assert.Equal(t, 5*time.Minute, b1.States[0].SumEstimatedLateness)

	b2 := buckets[2]
	require.Len(t, b2.States, 1)
	assert.Equal(t, domain.StateTypeScheduled, b2.States[0].StateType)
	assert.Equal(t, "Late", b2.States[0].StateName)
	assert.Equal(t, time.Duration(0), b2.States[0].SumEstimatedRunTime)
	assert.Equal(t, time.Hour+45*time.Minute, b2.States[0].SumEstimatedLateness)

	assert.Empty(t, buckets[3].States)

	b4 := buckets[4]
	require.Len(t, b4.States, 1)
	assert.Equal(t, domain.StateTypeScheduled, b4.States[0].StateType)
	assert.Equal(t, "Scheduled", b4.States[0].StateName)
	assert.Equal(t, time.Duration(0), b4.States[0].SumEstimatedLateness)
}

func TestAggregator_StatesSortedWithinBucket(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, store, _ := newTestAggregator(t, now)
	ts := now.Add(-30 * time.Minute)

	addFlowRun(t, store, stateAt(domain.StateTypeRunning, ts))
	addFlowRun(t, store, stateAt(domain.StateTypeCompleted, ts.Add(time.Minute)))
	addFlowRun(t, store, stateAt(domain.StateTypeFailed, ts.Add(2*time.Minute)))

	buckets, err := a.History(context.Background(), domain.RunKindFlow, Request{
		Start:    now.Add(-time.Hour),
		End:      now,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Len(t, buckets[0].States, 3)
	assert.Equal(t, domain.StateTypeCompleted, buckets[0].States[0].StateType)
	assert.Equal(t, domain.StateTypeFailed, buckets[0].States[1].StateType)
	assert.Equal(t, domain.StateTypeRunning, buckets[0].States[2].StateType)
}

func TestAggregator_AppliesFilter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, store, _ := newTestAggregator(t, now)
	ctx := context.Background()
	ts := now.Add(-30 * time.Minute)

	tagged := domain.NewFlowRun("flow-1", stateAt(domain.StateTypeCompleted, ts))
	tagged.Tags = []string{"nightly", "etl"}
	require.NoError(t, store.CreateRun(ctx, tagged))

	other := domain.NewFlowRun("flow-2", stateAt(domain.StateTypeFailed, ts))
	other.Tags = []string{"nightly"}
	require.NoError(t, store.CreateRun(ctx, other))

	req := Request{Start: now.Add(-time.Hour), End: now, Interval: time.Hour}

	req.Filter = domain.RunFilter{StateTypes: []domain.StateType{domain.StateTypeFailed}}
	buckets, err := a.History(ctx, domain.RunKindFlow, req)
	require.NoError(t, err)
	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, domain.StateTypeFailed, buckets[0].States[0].StateType)

	req.Filter = domain.RunFilter{FlowIDs: []string{"flow-1"}}
	buckets, err = a.History(ctx, domain.RunKindFlow, req)
	require.NoError(t, err)
	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, domain.StateTypeCompleted, buckets[0].States[0].StateType)

	// Tag filtering requires every listed tag.
	req.Filter = domain.RunFilter{Tags: []string{"nightly", "etl"}}
	buckets, err = a.History(ctx, domain.RunKindFlow, req)
	require.NoError(t, err)
	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, 1, buckets[0].States[0].CountRuns)

	req.Filter = domain.RunFilter{Tags: []string{"hourly"}}
	buckets, err = a.History(ctx, domain.RunKindFlow, req)
	require.NoError(t, err)
	assert.Empty(t, buckets[0].States)
}

func TestAggregator_KindsAreSeparate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, store, _ := newTestAggregator(t, now)
	ctx := context.Background()
	ts := now.Add(-30 * time.Minute)

	flowRun := domain.NewFlowRun("flow-1", stateAt(domain.StateTypeCompleted, ts))
	require.NoError(t, store.CreateRun(ctx, flowRun))
	taskRun := domain.NewTaskRun("flow-1", flowRun.ID, "extract", stateAt(domain.StateTypeFailed, ts))
	require.NoError(t, store.CreateRun(ctx, taskRun))

	req := Request{Start: now.Add(-time.Hour), End: now, Interval: time.Hour}

	buckets, err := a.History(ctx, domain.RunKindFlow, req)
	require.NoError(t, err)
	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, domain.StateTypeCompleted, buckets[0].States[0].StateType)

	buckets, err = a.History(ctx, domain.RunKindTask, req)
	require.NoError(t, err)
	require.Len(t, buckets[0].States, 1)
	assert.Equal(t, domain.StateTypeFailed, buckets[0].States[0].StateType)
}

func TestAggregator_CorruptScheduledRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, store, _ := newTestAggregator(t, now)
	ctx := context.Background()

	// Stored without a scheduled time, bypassing creation checks.
	corrupt := domain.NewFlowRun("flow-1", domain.State{
		Type:      domain.StateTypeScheduled,
		Name:      "Scheduled",
		Timestamp: now.Add(-10 * time.Minute),
	})
	require.NoError(t, store.CreateRun(ctx, corrupt))

	_, err := a.History(ctx, domain.RunKindFlow, Request{
		Start:    now.Add(-time.Hour),
		End:      now,
		Interval: time.Hour,
	})
	require.Error(t, err)
	assert.True(t, domain.IsIntegrityError(err))
}
