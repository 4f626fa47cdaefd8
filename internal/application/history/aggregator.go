package history

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
)

// MaxBuckets caps the grid size per request. Windows that would produce
// more buckets are truncated to the first MaxBuckets by interval start.
const MaxBuckets = 500

// minInterval is the smallest accepted bucket width.
const minInterval = time.Second

// Request describes one aggregation: the window [Start, End), the
// bucket width, and a filter runs must match to be counted.
type Request struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Filter   domain.RunFilter
}

// Bucket is one grid cell. The last bucket of a window keeps its full
// width, so its end may lie past the requested end.
type Bucket struct {
	IntervalStart time.Time      `json:"interval_start"`
	IntervalEnd   time.Time      `json:"interval_end"`
	States        []StateSummary `json:"states"`
}

// StateSummary aggregates the runs of one (state type, state name) pair
// within a bucket.
type StateSummary struct {
	StateType            domain.StateType `json:"state_type"`
	StateName            string           `json:"state_name"`
	CountRuns            int              `json:"count_runs"`
	SumEstimatedRunTime  time.Duration    `json:"sum_estimated_run_time"`
	SumEstimatedLateness time.Duration    `json:"sum_estimated_lateness"`
}

// Aggregator computes run history grids from a run store snapshot
type Aggregator struct {
	store   ports.RunStore
	metrics ports.MetricsCollector
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates a new history aggregator
func NewAggregator(store ports.RunStore, metrics ports.MetricsCollector, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// History aggregates runs of one kind over the requested grid
func (a *Aggregator) History(ctx context.Context, kind domain.RunKind, req Request) ([]Bucket, error) {
	if req.Interval < minInterval {
		return nil, domain.NewValidationError("history.interval", "interval must be at least one second")
	}

	started := time.Now()

	buckets := buildGrid(req.Start, req.End, req.Interval)
	if len(buckets) == 0 {
		a.metrics.RecordHistoryRequest(kind, 0, time.Since(started))
		return []Bucket{}, nil
	}

	runs, err := a.store.ListRuns(ctx, kind)
	if err != nil {
		return nil, err
	}

	// One clock reading for the whole pass keeps the derived sums of
	// in-flight runs consistent across buckets.
	now := a.now()

	cells := make([]map[stateKey]*StateSummary, len(buckets))
	lastEnd := buckets[len(buckets)-1].IntervalEnd

	for _, run := range runs {
		if !req.Filter.Matches(run) {
			continue
		}

		instant, err := binInstant(run)
		if err != nil {
			return nil, err
		}
		if instant.Before(req.Start) || !instant.Before(lastEnd) {
			continue
		}

		idx := int(instant.Sub(req.Start) / req.Interval)
		if idx < 0 || idx >= len(buckets) {
			continue
		}

		if cells[idx] == nil {
			cells[idx] = make(map[stateKey]*StateSummary)
		}
		key := stateKey{run.State.Type, run.State.Name}
		summary, ok := cells[idx][key]
		if !ok {
			summary = &StateSummary{StateType: run.State.Type, StateName: run.State.Name}
			cells[idx][key] = summary
		}
		summary.CountRuns++
		summary.SumEstimatedRunTime += run.EstimatedRunTime(now)
		summary.SumEstimatedLateness += run.EstimatedLateness(now)
	}

	for i := range buckets {
		buckets[i].States = sortedSummaries(cells[i])
	}

	elapsed := time.Since(started)
	a.metrics.RecordHistoryRequest(kind, len(buckets), elapsed)
	a.logger.Debug("history aggregated",
		zap.String("kind", string(kind)),
		zap.Int("buckets", len(buckets)),
		zap.Int("runs", len(runs)),
		zap.Duration("elapsed", elapsed))

	return buckets, nil
}

type stateKey struct {
	stateType domain.StateType
	stateName string
}

// buildGrid lays out bucket boundaries over [start, end). Buckets start
// at start + k*interval for every k with a start inside the window; the
// final bucket keeps its full width even when it overhangs end.
func buildGrid(start, end time.Time, interval time.Duration) []Bucket {
	if !start.Before(end) {
		return nil
	}

	buckets := make([]Bucket, 0, MaxBuckets)
	for cursor := start; cursor.Before(end) && len(buckets) < MaxBuckets; cursor = cursor.Add(interval) {
		buckets = append(buckets, Bucket{
			IntervalStart: cursor,
			IntervalEnd:   cursor.Add(interval),
		})
	}
	return buckets
}

// binInstant returns the instant a run is binned by: its due time for
// SCHEDULED runs, the state change time otherwise.
func binInstant(run *domain.Run) (time.Time, error) {
	if run.State.Type == domain.StateTypeScheduled {
		if run.State.ScheduledTime == nil {
			return time.Time{}, &domain.IntegrityError{RunID: run.ID, Reason: "SCHEDULED state has no scheduled time"}
		}
		return *run.State.ScheduledTime, nil
	}
	return run.State.Timestamp, nil
}

// sortedSummaries flattens a cell into a stable state list
func sortedSummaries(cell map[stateKey]*StateSummary) []StateSummary {
	states := make([]StateSummary, 0, len(cell))
	for _, summary := range cell {
		states = append(states, *summary)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].StateType == states[j].StateType {
			return states[i].StateName < states[j].StateName
		}
		return states[i].StateType < states[j].StateType
	})
	return states
}
