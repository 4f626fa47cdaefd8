package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowdhq/flowd/pkg/domain"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsCreated          *prometheus.CounterVec
	transitionsApplied   *prometheus.CounterVec
	transitionsRejected  *prometheus.CounterVec
	versionConflicts     *prometheus.CounterVec
	lateRuns             prometheus.Counter
	historyRequests      *prometheus.CounterVec
	activeRuns           *prometheus.GaugeVec
	runDuration          *prometheus.HistogramVec
	historyRequestTime   *prometheus.HistogramVec
	historyBucketsServed prometheus.Histogram
	workerPoolIdle       prometheus.Gauge
	workerPoolBusy       prometheus.Gauge
	workerPoolStopped    prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		runsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_runs_created_total",
				Help: "Total number of runs created",
			},
			[]string{"kind", "state_type"},
		),
		transitionsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_transitions_applied_total",
				Help: "Total number of committed state transitions",
			},
			[]string{"kind", "from", "to", "forced"},
		),
		transitionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_transitions_rejected_total",
				Help: "Total number of transitions refused by the policy",
			},
			[]string{"kind", "from", "to"},
		),
		versionConflicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_version_conflicts_total",
				Help: "Total number of optimistic update conflicts",
			},
			[]string{"kind"},
		),
		lateRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flowd_late_runs_total",
				Help: "Total number of runs marked late",
			},
		),
		historyRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_history_requests_total",
				Help: "Total number of run history aggregations",
			},
			[]string{"kind"},
		),
		activeRuns: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowd_active_runs",
				Help: "Current number of runs in a non-terminal state",
			},
			[]string{"kind"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowd_run_duration_seconds",
				Help:    "Run time of runs reaching a terminal state",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"kind"},
		),
		historyRequestTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowd_history_request_duration_seconds",
				Help:    "Run history aggregation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"kind"},
		),
		historyBucketsServed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowd_history_buckets_served",
				Help:    "Number of buckets returned per history aggregation",
				Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
			},
		),
		workerPoolIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowd_worker_pool_idle",
				Help: "Number of idle late-marker workers",
			},
		),
		workerPoolBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowd_worker_pool_busy",
				Help: "Number of busy late-marker workers",
			},
		),
		workerPoolStopped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowd_worker_pool_stopped",
				Help: "Number of stopped late-marker workers",
			},
		),
	}
}

// RecordRunCreated counts a newly created run
func (c *Collector) RecordRunCreated(kind domain.RunKind, stateType domain.StateType) {
	c.runsCreated.WithLabelValues(string(kind), string(stateType)).Inc()
}

// RecordTransitionApplied counts a committed state transition
func (c *Collector) RecordTransitionApplied(kind domain.RunKind, from, to domain.StateType, forced bool) {
	c.transitionsApplied.WithLabelValues(string(kind), string(from), string(to), strconv.FormatBool(forced)).Inc()
}

// RecordTransitionRejected counts a transition the policy refused
func (c *Collector) RecordTransitionRejected(kind domain.RunKind, from, to domain.StateType) {
	c.transitionsRejected.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

// RecordVersionConflict counts a compare-and-swap retry
func (c *Collector) RecordVersionConflict(kind domain.RunKind) {
	c.versionConflicts.WithLabelValues(string(kind)).Inc()
}

// RecordRunDuration records the run time of a finished run
func (c *Collector) RecordRunDuration(kind domain.RunKind, duration time.Duration) {
	c.runDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordLateRun counts a run marked late by the scanner
func (c *Collector) RecordLateRun() {
	c.lateRuns.Inc()
}

// RecordHistoryRequest records one aggregation request
func (c *Collector) RecordHistoryRequest(kind domain.RunKind, buckets int, duration time.Duration) {
	c.historyRequests.WithLabelValues(string(kind)).Inc()
	c.historyRequestTime.WithLabelValues(string(kind)).Observe(duration.Seconds())
	c.historyBucketsServed.Observe(float64(buckets))
}

// SetActiveRuns sets the current number of non-terminal runs
func (c *Collector) SetActiveRuns(kind domain.RunKind, count int) {
	c.activeRuns.WithLabelValues(string(kind)).Set(float64(count))
}

// RecordWorkerPoolStatus records late-marker worker pool occupancy
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
