package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
)

type stubMarker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	done  chan string
}

func newStubMarker() *stubMarker {
	return &stubMarker{
		fail: make(map[string]error),
		done: make(chan string, 64),
	}
}

func (m *stubMarker) MarkLate(ctx context.Context, runID string) (*domain.Run, bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runID)
	err := m.fail[runID]
	m.mu.Unlock()

	defer func() { m.done <- runID }()
	if err != nil {
		return nil, false, err
	}

	due := time.Now().Add(-time.Minute)
	run := &domain.Run{
		ID:   runID,
		Kind: domain.RunKindFlow,
		State: domain.State{
			Type:          domain.StateTypeScheduled,
			Name:          "Late",
			Timestamp:     time.Now(),
			ScheduledTime: &due,
		},
	}
	return run, true, nil
}

func (m *stubMarker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type stubPoolMetrics struct {
	mu         sync.Mutex
	activeRuns map[domain.RunKind]int
	poolStatus []int
}

func newStubPoolMetrics() *stubPoolMetrics {
	return &stubPoolMetrics{activeRuns: make(map[domain.RunKind]int)}
}

func (m *stubPoolMetrics) RecordRunCreated(kind domain.RunKind, stateType domain.StateType) {}
func (m *stubPoolMetrics) RecordTransitionApplied(kind domain.RunKind, from, to domain.StateType, forced bool) {
}
func (m *stubPoolMetrics) RecordTransitionRejected(kind domain.RunKind, from, to domain.StateType) {}
func (m *stubPoolMetrics) RecordVersionConflict(kind domain.RunKind)                               {}
func (m *stubPoolMetrics) RecordRunDuration(kind domain.RunKind, duration time.Duration)           {}
func (m *stubPoolMetrics) RecordLateRun()                                                          {}
func (m *stubPoolMetrics) RecordHistoryRequest(kind domain.RunKind, buckets int, duration time.Duration) {
}
func (m *stubPoolMetrics) SetActiveRuns(kind domain.RunKind, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeRuns[kind] = count
}
func (m *stubPoolMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolStatus = []int{idle, busy, stopped}
}

func (m *stubPoolMetrics) activeFor(kind domain.RunKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRuns[kind]
}

func waitForJobs(t *testing.T, marker *stubMarker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-marker.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
}

func TestPool_ProcessesSubmittedJobs(t *testing.T) {
	marker := newStubMarker()
	pool := NewPool(2, marker, newStubPoolMetrics(), zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		assert.True(t, pool.Submit(fmt.Sprintf("run-%d", i)))
	}

	waitForJobs(t, marker, 5)
	assert.Equal(t, 5, marker.callCount())
}

func TestPool_KeepsRunningAfterMarkerErrors(t *testing.T) {
	marker := newStubMarker()
	marker.fail["run-bad"] = fmt.Errorf("storage unavailable")
	marker.fail["run-gone"] = domain.NewNotFoundError("run", "run-gone")

	pool := NewPool(1, marker, newStubPoolMetrics(), zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	pool.Submit("run-bad")
	pool.Submit("run-gone")
	pool.Submit("run-ok")

	waitForJobs(t, marker, 3)
	assert.Equal(t, 3, marker.callCount())
}

func TestPool_SubmitDropsWhenQueueFull(t *testing.T) {
	// Never started, so nothing drains the queue.
	pool := NewPool(1, newStubMarker(), newStubPoolMetrics(), zap.NewNop(), time.Minute)

	for i := 0; i < defaultQueueSize; i++ {
		require.True(t, pool.Submit(fmt.Sprintf("run-%d", i)))
	}
	assert.False(t, pool.Submit("run-overflow"))
}

func TestPool_ShutdownStopsWorkers(t *testing.T) {
	pool := NewPool(3, newStubMarker(), newStubPoolMetrics(), zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())

	require.NoError(t, pool.Shutdown(context.Background()))

	for id, status := range pool.GetStatus() {
		assert.Equal(t, WorkerStatusStopped, status, "worker %s", id)
	}
}

func TestHealthMonitor_Status(t *testing.T) {
	metrics := newStubPoolMetrics()
	pool := NewPool(2, newStubMarker(), metrics, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())

	status := pool.health.GetStatus()
	assert.Equal(t, 2, status.TotalWorkers)
	assert.Equal(t, 2, status.IdleWorkers)
	assert.True(t, status.Healthy)
	assert.True(t, pool.health.IsHealthy())

	require.NoError(t, pool.Shutdown(context.Background()))

	status = pool.health.GetStatus()
	assert.Equal(t, 2, status.StoppedWorkers)
	assert.False(t, status.Healthy)
}
