package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
)

// Scanner periodically sweeps the run store for scheduled flow runs
// whose due time plus the grace margin has passed, and hands them to
// the pool. Each sweep also refreshes the active-run gauges.
type Scanner struct {
	store    ports.RunStore
	pool     *Pool
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	interval time.Duration
	margin   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewScanner creates a new late-run scanner. margin is how far past its
// scheduled time a run may be before it counts as late.
func NewScanner(
	store ports.RunStore,
	pool *Pool,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	interval, margin time.Duration,
) *Scanner {
	return &Scanner{
		store:    store,
		pool:     pool,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		margin:   margin,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweep loop
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting late-run scanner",
		zap.Duration("interval", s.interval),
		zap.Duration("margin", s.margin))
	go s.run()
}

// Stop stops the sweep loop
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
}

// run sweeps once at startup, then on every tick. The first sweep
// catches runs that came due while the process was down.
func (s *Scanner) run() {
	s.sweep(context.Background())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

// sweep lists flow runs, submits the overdue scheduled ones, and
// refreshes the active-run gauges for both kinds.
func (s *Scanner) sweep(ctx context.Context) {
	flowRuns, err := s.store.ListRuns(ctx, domain.RunKindFlow)
	if err != nil {
		s.logger.Error("failed to list flow runs", zap.Error(err))
		return
	}
	s.metrics.SetActiveRuns(domain.RunKindFlow, countActive(flowRuns))

	taskRuns, err := s.store.ListRuns(ctx, domain.RunKindTask)
	if err != nil {
		s.logger.Error("failed to list task runs", zap.Error(err))
	} else {
		s.metrics.SetActiveRuns(domain.RunKindTask, countActive(taskRuns))
	}

	cutoff := s.now().Add(-s.margin)
	submitted := 0
	for _, run := range flowRuns {
		if run.State.Type != domain.StateTypeScheduled || run.State.Name == "Late" {
			continue
		}
		if run.State.ScheduledTime == nil {
			s.logger.Warn("scheduled run without a scheduled time",
				zap.String("run_id", run.ID))
			continue
		}
		if run.State.ScheduledTime.After(cutoff) {
			continue
		}
		if s.pool.Submit(run.ID) {
			submitted++
		}
	}

	if submitted > 0 {
		s.logger.Debug("sweep submitted overdue runs", zap.Int("count", submitted))
	}
}

func countActive(runs []*domain.Run) int {
	active := 0
	for _, run := range runs {
		if !run.State.Type.Terminal() {
			active++
		}
	}
	return active
}
