package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
	"github.com/flowdhq/flowd/pkg/schema"
)

// Service coordinates flow definition storage
type Service struct {
	store     ports.FlowStore
	validator *Validator
	eventBus  ports.EventBus
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new catalog service
func NewService(
	store ports.FlowStore,
	validator *Validator,
	eventBus ports.EventBus,
	logger *zap.Logger,
) *Service {
	if validator == nil {
		validator = NewValidator()
	}
	return &Service{
		store:     store,
		validator: validator,
		eventBus:  eventBus,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SaveFlow validates and stores a flow document. The submission is
// rebuilt into a flow, validated, and dumped again, so what lands in
// the store is the canonical form rather than whatever field order or
// omissions the client sent. Returns the canonical document.
func (s *Service) SaveFlow(ctx context.Context, doc *schema.FlowDocument) (*schema.FlowDocument, error) {
	flow, err := schema.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow document: %w", err)
	}

	if err := s.validator.Validate(flow); err != nil {
		s.logger.Error("flow validation failed",
			zap.String("flow_id", flow.ID),
			zap.String("flow_name", flow.Name),
			zap.Error(err))
		return nil, err
	}

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}

	canonical := schema.Dump(flow)
	if err := s.store.SaveFlow(ctx, canonical); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	s.publish(ctx, ports.EventFlowSaved, flow.ID, map[string]any{
		"flow_name": flow.Name,
		"tasks":     len(flow.Tasks),
	})
	s.logger.Info("flow saved",
		zap.String("flow_id", flow.ID),
		zap.String("flow_name", flow.Name),
		zap.Int("tasks", len(flow.Tasks)),
		zap.Int("edges", len(flow.Edges)))

	return canonical, nil
}

// GetFlow retrieves a stored flow document by id
func (s *Service) GetFlow(ctx context.Context, id string) (*schema.FlowDocument, error) {
	return s.store.GetFlow(ctx, id)
}

// ListFlows returns all stored flow documents
func (s *Service) ListFlows(ctx context.Context) ([]*schema.FlowDocument, error) {
	return s.store.ListFlows(ctx)
}

// DeleteFlow removes a stored flow document by id
func (s *Service) DeleteFlow(ctx context.Context, id string) error {
	if err := s.store.DeleteFlow(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, ports.EventFlowDeleted, id, nil)
	s.logger.Info("flow deleted", zap.String("flow_id", id))
	return nil
}

// NextFireTimes previews the next n fire times of a flow's schedule
// strictly after the given instant. A zero instant means now. Flows
// without a schedule fail validation.
func (s *Service) NextFireTimes(ctx context.Context, id string, after time.Time, n int) ([]time.Time, error) {
	doc, err := s.store.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}

	flow, err := schema.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow document: %w", err)
	}
	if flow.Schedule == nil {
		return nil, domain.NewValidationError("flow.schedule", fmt.Sprintf("flow %s has no schedule", id))
	}

	if after.IsZero() {
		after = s.now()
	}
	return flow.Schedule.Next(after, n)
}

// publish emits a flow event. Delivery failures are logged and do not
// fail the operation that triggered them.
func (s *Service) publish(ctx context.Context, eventType ports.EventType, flowID string, data map[string]any) {
	event := ports.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		FlowID:    flowID,
		Timestamp: s.now(),
		Data:      data,
	}
	if err := s.eventBus.Publish(ctx, ports.TopicFlows, event); err != nil {
		s.logger.Error("failed to publish flow event",
			zap.String("event_type", string(eventType)),
			zap.String("flow_id", flowID),
			zap.Error(err))
	}
}
