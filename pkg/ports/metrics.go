package ports

import (
	"time"

	"github.com/flowdhq/flowd/pkg/domain"
)

// MetricsCollector records engine activity for the monitoring backend.
type MetricsCollector interface {
	// RecordRunCreated counts a newly created run.
	RecordRunCreated(kind domain.RunKind, stateType domain.StateType)

	// RecordTransitionApplied counts a committed state transition.
	RecordTransitionApplied(kind domain.RunKind, from, to domain.StateType, forced bool)

	// RecordTransitionRejected counts a transition the policy refused.
	RecordTransitionRejected(kind domain.RunKind, from, to domain.StateType)

	// RecordVersionConflict counts a compare-and-swap retry.
	RecordVersionConflict(kind domain.RunKind)

	// RecordRunDuration records the run time of a run that reached a
	// terminal state.
	RecordRunDuration(kind domain.RunKind, duration time.Duration)

	// RecordLateRun counts a run marked late by the scanner.
	RecordLateRun()

	// RecordHistoryRequest records one aggregation request and how long
	// it took.
	RecordHistoryRequest(kind domain.RunKind, buckets int, duration time.Duration)

	// SetActiveRuns sets the current number of non-terminal runs.
	SetActiveRuns(kind domain.RunKind, count int)

	// RecordWorkerPoolStatus records late-marker worker pool occupancy.
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
