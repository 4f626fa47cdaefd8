package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
)

// defaultQueueSize bounds the job queue. A full queue drops submissions
// and relies on the next sweep to resubmit them.
const defaultQueueSize = 256

// LateMarker marks one scheduled run late. The second return reports
// whether this call performed the marking.
type LateMarker interface {
	MarkLate(ctx context.Context, runID string) (*domain.Run, bool, error)
}

// Pool manages a pool of worker goroutines marking overdue runs late
type Pool struct {
	size    int
	marker  LateMarker
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	jobs    chan string
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new late-marking worker pool
func NewPool(
	size int,
	marker LateMarker,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		marker:  marker,
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan string, defaultQueueSize),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.logger.Info("starting late-mark worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("late-mark worker pool started", zap.Int("workers", p.size))
	return nil
}

// Submit queues a run for late marking. A full queue drops the job and
// returns false; marking is idempotent, so the next sweep simply
// resubmits the run.
func (p *Pool) Submit(runID string) bool {
	select {
	case p.jobs <- runID:
		return true
	default:
		p.logger.Debug("late-mark queue full, dropping job", zap.String("run_id", runID))
		return false
	}
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down late-mark worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("late-mark worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// Health returns the pool's health monitor.
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.status = WorkerStatusStopped
			w.mu.Unlock()
			w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
			return

		case runID := <-w.pool.jobs:
			w.markLate(ctx, runID)
		}
	}
}

// markLate processes a single late-marking job
func (w *worker) markLate(ctx context.Context, runID string) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.mu.Unlock()
	}()

	run, marked, err := w.pool.marker.MarkLate(ctx, runID)
	if err != nil {
		// The run may have been deleted between the sweep and this job.
		if domain.IsNotFound(err) {
			return
		}
		w.pool.logger.Error("failed to mark run late",
			zap.String("worker_id", w.id),
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}
	if !marked {
		// The run moved on, or another worker got here first.
		return
	}

	w.pool.logger.Info("run marked late",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID),
		zap.Timep("scheduled_time", run.State.ScheduledTime))
}
