package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	eventsmem "github.com/flowdhq/flowd/pkg/adapters/events/memory"
	storagemem "github.com/flowdhq/flowd/pkg/adapters/storage/memory"
	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/ports"
	"github.com/flowdhq/flowd/pkg/schema"
)

func newTestService(t *testing.T) (*Service, *eventsmem.InMemoryEventBus) {
	t.Helper()
	bus := eventsmem.NewInMemoryEventBus()
	svc := NewService(storagemem.NewFlowStore(), NewValidator(), bus, zap.NewNop())
	return svc, bus
}

func buildPipeline(t *testing.T) *domain.Flow {
	t.Helper()
	flow := domain.NewFlow("etl")
	extract := domain.NewTask("extract")
	transform := domain.NewTask("transform")
	load := domain.NewTask("load")
	require.NoError(t, flow.AddEdge(extract, transform, "raw", false))
	require.NoError(t, flow.AddEdge(transform, load, "rows", false))
	require.NoError(t, flow.SetReferenceTasks([]*domain.Task{load}))
	return flow
}

func TestService_SaveFlowRoundsToCanonicalForm(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	received := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, ports.TopicFlows, func(ctx context.Context, event ports.Event) error {
		received <- event
		return nil
	}))

	doc := schema.Dump(buildPipeline(t))
	doc.Parameters = nil

	saved, err := svc.SaveFlow(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	// The stored form is canonical even when the submission was not.
	assert.NotNil(t, saved.Parameters)
	require.Len(t, saved.Tasks, 3)
	for i := 1; i < len(saved.Tasks); i++ {
		assert.Less(t, saved.Tasks[i-1].ID, saved.Tasks[i].ID)
	}

	stored, err := svc.GetFlow(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, stored)

	select {
	case event := <-received:
		assert.Equal(t, ports.EventFlowSaved, event.Type)
		assert.Equal(t, saved.ID, event.FlowID)
		assert.Equal(t, "etl", event.Data["flow_name"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flow.saved event")
	}
}

func TestService_SaveFlowAssignsAndKeepsIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc := schema.Dump(buildPipeline(t))
	doc.ID = ""
	saved, err := svc.SaveFlow(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	// Saving again under the assigned id replaces the stored document.
	saved.Name = "etl-v2"
	resaved, err := svc.SaveFlow(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, resaved.ID)

	flows, err := svc.ListFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "etl-v2", flows[0].Name)
}

func TestService_SaveFlowRejectsInvalidFlows(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  func(t *testing.T) *schema.FlowDocument
	}{
		{
			name: "blank name",
			doc: func(t *testing.T) *schema.FlowDocument {
				flow := buildPipeline(t)
				flow.Name = ""
				return schema.Dump(flow)
			},
		},
		{
			name: "dependency cycle",
			doc: func(t *testing.T) *schema.FlowDocument {
				flow := domain.NewFlow("loop")
				a := domain.NewTask("a")
				b := domain.NewTask("b")
				require.NoError(t, flow.AddEdge(a, b, "", false))
				require.NoError(t, flow.AddEdge(b, a, "", false))
				return schema.Dump(flow)
			},
		},
		{
			name: "self loop",
			doc: func(t *testing.T) *schema.FlowDocument {
				flow := domain.NewFlow("loop")
				a := domain.NewTask("a")
				require.NoError(t, flow.AddEdge(a, a, "", false))
				return schema.Dump(flow)
			},
		},
		{
			name: "duplicate slug",
			doc: func(t *testing.T) *schema.FlowDocument {
				flow := domain.NewFlow("dup")
				a := domain.NewTask("a")
				a.Slug = "shared"
				b := domain.NewTask("b")
				b.Slug = "shared"
				_, err := flow.AddTask(a)
				require.NoError(t, err)
				_, err = flow.AddTask(b)
				require.NoError(t, err)
				return schema.Dump(flow)
			},
		},
		{
			name: "dangling edge",
			doc: func(t *testing.T) *schema.FlowDocument {
				doc := schema.Dump(buildPipeline(t))
				doc.Edges = append(doc.Edges, schema.EdgeDocument{UpstreamID: "ghost", DownstreamID: doc.Tasks[0].ID})
				return doc
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SaveFlow(ctx, tt.doc(t))
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
		})
	}

	flows, err := svc.ListFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, flows)
}

func TestService_DeleteFlow(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	saved, err := svc.SaveFlow(ctx, schema.Dump(buildPipeline(t)))
	require.NoError(t, err)

	received := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, ports.TopicFlows, func(ctx context.Context, event ports.Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, svc.DeleteFlow(ctx, saved.ID))

	_, err = svc.GetFlow(ctx, saved.ID)
	assert.True(t, domain.IsNotFound(err))

	err = svc.DeleteFlow(ctx, saved.ID)
	assert.True(t, domain.IsNotFound(err))

	select {
	case event := <-received:
		assert.Equal(t, ports.EventFlowDeleted, event.Type)
		assert.Equal(t, saved.ID, event.FlowID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a flow.deleted event")
	}
}

func TestService_NextFireTimes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	flow := buildPipeline(t)
	sched, err := domain.NewCronSchedule("0 6 * * *")
	require.NoError(t, err)
	flow.Schedule = sched

	saved, err := svc.SaveFlow(ctx, schema.Dump(flow))
	require.NoError(t, err)

	after := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	times, err := svc.NextFireTimes(ctx, saved.ID, after, 3)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2024, 5, 3, 6, 0, 0, 0, time.UTC), times[1])
	assert.Equal(t, time.Date(2024, 5, 4, 6, 0, 0, 0, time.UTC), times[2])
}

func TestService_NextFireTimesDefaultsToNow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 5, 59, 0, 0, time.UTC) }

	flow := buildPipeline(t)
	sched, err := domain.NewCronSchedule("0 6 * * *")
	require.NoError(t, err)
	flow.Schedule = sched

	saved, err := svc.SaveFlow(ctx, schema.Dump(flow))
	require.NoError(t, err)

	times, err := svc.NextFireTimes(ctx, saved.ID, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), times[0])
}

func TestService_NextFireTimesRequiresSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	saved, err := svc.SaveFlow(ctx, schema.Dump(buildPipeline(t)))
	require.NoError(t, err)

	_, err = svc.NextFireTimes(ctx, saved.ID, time.Now(), 3)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	_, err = svc.NextFireTimes(ctx, "missing", time.Now(), 3)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_ForeignScheduleKindIsStoredOpaquely(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A schedule kind from another engine saves and round-trips, but
	// fire times cannot be previewed for it.
	flow := buildPipeline(t)
	flow.Schedule = &domain.Schedule{Kind: "lunar", Extra: map[string]any{"phase": "full"}}

	saved, err := svc.SaveFlow(ctx, schema.Dump(flow))
	require.NoError(t, err)
	require.NotNil(t, saved.Schedule)
	assert.Equal(t, "lunar", saved.Schedule.Kind)
	assert.Equal(t, "full", saved.Schedule.Extra["phase"])

	_, err = svc.NextFireTimes(ctx, saved.ID, time.Now(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownScheduleKind)
}
