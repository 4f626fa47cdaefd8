package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
)

// maxTransitionAttempts bounds the optimistic retry loop. Each retry
// re-reads the run and re-judges the transition against its new state.
const maxTransitionAttempts = 5

// Ledger coordinates run creation and state transitions
type Ledger struct {
	store    ports.RunStore
	policy   *domain.Policy
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger creates a new run ledger. A nil policy falls back to
// domain.DefaultPolicy.
func NewLedger(
	store ports.RunStore,
	policy *domain.Policy,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Ledger {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &Ledger{
		store:    store,
		policy:   policy,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateFlowRunParams carries the inputs for a new flow run. A nil
// State starts the run Pending.
type CreateFlowRunParams struct {
	FlowID string
	Tags   []string
	State  *domain.State
}

// CreateTaskRunParams carries the inputs for a new task run under an
// existing flow run.
type CreateTaskRunParams struct {
	FlowID    string
	FlowRunID string
	TaskKey   string
	Tags      []string
	State     *domain.State
}

// CreateFlowRun creates and stores a new flow run
func (l *Ledger) CreateFlowRun(ctx context.Context, p CreateFlowRunParams) (*domain.Run, error) {
	if p.FlowID == "" {
		return nil, domain.NewValidationError("flow_id", "flow id is required")
	}

	initial, err := l.initialState(p.State)
	if err != nil {
		return nil, err
	}

	run := domain.NewFlowRun(p.FlowID, initial)
	run.Tags = p.Tags
	run.Created = l.now()

	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create flow run: %w", err)
	}

	l.publishCreated(ctx, run)
	l.metrics.RecordRunCreated(run.Kind, run.State.Type)
	l.logger.Info("flow run created",
		zap.String("run_id", run.ID),
		zap.String("flow_id", run.FlowID),
		zap.String("state_type", string(run.State.Type)))

	return run, nil
}

// CreateTaskRun creates and stores a new task run. The parent flow run
// must exist.
func (l *Ledger) CreateTaskRun(ctx context.Context, p CreateTaskRunParams) (*domain.Run, error) {
	if p.FlowID == "" {
		return nil, domain.NewValidationError("flow_id", "flow id is required")
	}
	if p.FlowRunID == "" {
		return nil, domain.NewValidationError("flow_run_id", "flow run id is required")
	}
	if p.TaskKey == "" {
		return nil, domain.NewValidationError("task_key", "task key is required")
	}

	parent, err := l.store.GetRun(ctx, p.FlowRunID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != domain.RunKindFlow {
		return nil, domain.NewValidationError("flow_run_id", fmt.Sprintf("run %s is not a flow run", p.FlowRunID))
	}

	initial, err := l.initialState(p.State)
	if err != nil {
		return nil, err
	}

	run := domain.NewTaskRun(p.FlowID, p.FlowRunID, p.TaskKey, initial)
	run.Tags = p.Tags
	run.Created = l.now()

	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create task run: %w", err)
	}

	l.publishCreated(ctx, run)
	l.metrics.RecordRunCreated(run.Kind, run.State.Type)
	l.logger.Info("task run created",
		zap.String("run_id", run.ID),
		zap.String("flow_run_id", run.FlowRunID),
		zap.String("task_key", run.TaskKey),
		zap.String("state_type", string(run.State.Type)))

	return run, nil
}

// GetRun retrieves a run by id
func (l *Ledger) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return l.store.GetRun(ctx, id)
}

// ListRuns returns all runs of a kind matching the filter
func (l *Ledger) ListRuns(ctx context.Context, kind domain.RunKind, filter domain.RunFilter) ([]*domain.Run, error) {
	runs, err := l.store.ListRuns(ctx, kind)
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Run, 0, len(runs))
	for _, run := range runs {
		if filter.Matches(run) {
			matched = append(matched, run)
		}
	}
	return matched, nil
}

// SetRunState proposes a transition to the given state. A transition
// the policy refuses returns the run unchanged together with a
// ConstraintViolation. On a version conflict the proposal is re-judged
// against the run's new current state.
func (l *Ledger) SetRunState(ctx context.Context, runID string, proposed domain.State, force bool) (*domain.Run, error) {
	proposed = proposed.Normalized(l.now())
	if err := proposed.Validate(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		run, err := l.store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}

		current := run.State.Type
		if !l.policy.Allows(&current, proposed.Type, force) {
			l.metrics.RecordTransitionRejected(run.Kind, current, proposed.Type)
			l.logger.Debug("transition rejected",
				zap.String("run_id", runID),
				zap.String("from", string(current)),
				zap.String("to", string(proposed.Type)))
			return run, &domain.ConstraintViolation{RunID: runID, Current: current, Proposed: proposed.Type}
		}

		updated := run.Clone()
		updated.History = append(updated.History, updated.State)
		updated.State = proposed

		if err := l.store.UpdateRun(ctx, updated, run.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				l.metrics.RecordVersionConflict(run.Kind)
				l.logger.Debug("version conflict, retrying",
					zap.String("run_id", runID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}

		l.publishStateChanged(ctx, updated, current, force)
		l.metrics.RecordTransitionApplied(updated.Kind, current, proposed.Type, force)
		if proposed.Terminal() {
			l.metrics.RecordRunDuration(updated.Kind, updated.EstimatedRunTime(l.now()))
		}
		l.logger.Info("run state changed",
			zap.String("run_id", runID),
			zap.String("kind", string(updated.Kind)),
			zap.String("from", string(current)),
			zap.String("to", string(proposed.Type)),
			zap.Bool("forced", force))

		return updated, nil
	}

	return nil, fmt.Errorf("failed to set state for run %s after %d attempts: %w",
		runID, maxTransitionAttempts, domain.ErrVersionConflict)
}

// MarkLate renames a run's SCHEDULED state to Late, keeping its
// scheduled time. Runs that already moved on, or were already marked,
// are skipped. The returned bool reports whether the run was marked.
func (l *Ledger) MarkLate(ctx context.Context, runID string) (*domain.Run, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		run, err := l.store.GetRun(ctx, runID)
		if err != nil {
			return nil, false, err
		}

		if run.State.Type != domain.StateTypeScheduled || run.State.Name == "Late" {
			return run, false, nil
		}
		if run.State.ScheduledTime == nil {
			return nil, false, &domain.IntegrityError{RunID: runID, Reason: "SCHEDULED state has no scheduled time"}
		}

		current := run.State.Type
		if !l.policy.Allows(&current, domain.StateTypeScheduled, false) {
			return run, false, nil
		}

		late := domain.Late(*run.State.ScheduledTime)
		late.Timestamp = l.now()

		updated := run.Clone()
		updated.History = append(updated.History, updated.State)
		updated.State = late

		if err := l.store.UpdateRun(ctx, updated, run.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				l.metrics.RecordVersionConflict(run.Kind)
				continue
			}
			return nil, false, err
		}

		l.publishLate(ctx, updated)
		l.metrics.RecordLateRun()
		l.logger.Info("run marked late",
			zap.String("run_id", runID),
			zap.Time("scheduled_time", *updated.State.ScheduledTime))

		return updated, true, nil
	}

	return nil, false, fmt.Errorf("failed to mark run %s late after %d attempts: %w",
		runID, maxTransitionAttempts, domain.ErrVersionConflict)
}

// initialState resolves and checks the state a new run starts in
func (l *Ledger) initialState(s *domain.State) (domain.State, error) {
	initial := domain.Pending()
	if s != nil {
		initial = *s
	}
	initial = initial.Normalized(l.now())
	if err := initial.Validate(); err != nil {
		return domain.State{}, err
	}
	return initial, nil
}

// publishCreated announces a new run. The run is already stored, so a
// publish failure is logged rather than surfaced.
func (l *Ledger) publishCreated(ctx context.Context, run *domain.Run) {
	event := ports.Event{
		ID:        uuid.NewString(),
		Type:      ports.EventRunCreated,
		RunID:     run.ID,
		RunKind:   run.Kind,
		FlowID:    run.FlowID,
		Timestamp: l.now(),
		Data: map[string]any{
			"state_type": string(run.State.Type),
			"state_name": run.State.Name,
		},
	}
	if err := l.eventBus.Publish(ctx, ports.TopicRuns, event); err != nil {
		l.logger.Error("failed to publish run created event",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

// publishStateChanged announces a committed transition
func (l *Ledger) publishStateChanged(ctx context.Context, run *domain.Run, from domain.StateType, forced bool) {
	event := ports.Event{
		ID:        uuid.NewString(),
		Type:      ports.EventRunStateChanged,
		RunID:     run.ID,
		RunKind:   run.Kind,
		FlowID:    run.FlowID,
		Timestamp: l.now(),
		Data: map[string]any{
			"from_type": string(from),
			"to_type":   string(run.State.Type),
			"to_name":   run.State.Name,
			"forced":    forced,
		},
	}
	if err := l.eventBus.Publish(ctx, ports.TopicRuns, event); err != nil {
		l.logger.Error("failed to publish state changed event",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

// publishLate announces a run marked late
func (l *Ledger) publishLate(ctx context.Context, run *domain.Run) {
	event := ports.Event{
		ID:        uuid.NewString(),
		Type:      ports.EventRunLate,
		RunID:     run.ID,
		RunKind:   run.Kind,
		FlowID:    run.FlowID,
		Timestamp: l.now(),
		Data: map[string]any{
			"scheduled_time": run.State.ScheduledTime.Format(time.RFC3339Nano),
		},
	}
	if err := l.eventBus.Publish(ctx, ports.TopicRuns, event); err != nil {
		l.logger.Error("failed to publish run late event",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}
