package workflow_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/automation/pkg/events"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/testutil"
	"github.com/dukex/automation/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(h *harness) *workflow.Manager {
	logger := slog.New(slog.DiscardHandler)
	repo := h.store.WorkflowRepository()

	return workflow.NewManager(
		workflow.NewDispatcher(repo, logger),
		workflow.NewLanes(h.executor, repo, logger, 4, 0),
		h.executor,
		logger,
	)
}

func TestManager_IngestRunsTenantWorkflows(t *testing.T) {
	actions := newRecorder()
	h := newHarness(t, actions)
	manager := newManager(h)

	mine := testutil.CreateTestWorkflow(t, testutil.WithActions(testutil.EmailAction(1), testutil.TagAction(2)))
	theirs := testutil.CreateTestWorkflow(t, testutil.WithTenant("tenant-2"))
	h.save(t, mine)
	h.save(t, theirs)

	ctx, cancel := context.WithCancel(context.Background())

	event, err := manager.Ingest(ctx, models.TriggerAppointmentCompleted, "tenant-1", completedPayload)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, testutil.T0, event.OccurredAt)

	// executions are detached from the caller
	cancel()
	manager.Wait()

	assert.Equal(t, []models.ActionType{models.ActionSendEmail, models.ActionAddClientTag}, actions.types())
	assert.Len(t, h.history(t, mine), 1)
	assert.Empty(t, h.history(t, theirs))
}

func TestManager_RejectsInvalidEvents(t *testing.T) {
	h := newHarness(t, newRecorder())
	manager := newManager(h)
	ctx := context.Background()

	_, err := manager.Ingest(ctx, "APPOINTMENT_RESCHEDULED", "tenant-1", nil)
	require.ErrorIs(t, err, workflow.ErrInvalidEvent)

	_, err = manager.Ingest(ctx, models.TriggerClientCreated, "", nil)
	require.ErrorIs(t, err, workflow.ErrInvalidEvent)

	_, err = manager.Ingest(ctx, models.TriggerClientCreated, "tenant-1", map[string]any{
		workflow.ActionsContextKey: map[string]any{"a1": "forged"},
	})
	require.ErrorIs(t, err, workflow.ErrInvalidEvent)
}

func TestManager_HandleBusinessEventDropsInvalidEvents(t *testing.T) {
	actions := newRecorder()
	h := newHarness(t, actions)
	manager := newManager(h)
	ctx := context.Background()

	w := testutil.CreateTestWorkflow(t, testutil.WithTrigger(models.WorkflowTrigger{Type: models.TriggerClientCreated}))
	h.save(t, w)

	require.NoError(t, manager.HandleBusinessEvent(ctx, &events.WorkflowFact{}))

	for _, event := range []models.Event{
		{ID: "evt-1", Type: "APPOINTMENT_RESCHEDULED", TenantID: "tenant-1"},
		{ID: "evt-2", Type: models.TriggerClientCreated},
		{ID: "evt-3", Type: models.TriggerClientCreated, TenantID: "tenant-1", Payload: map[string]any{"actions": "x"}},
	} {
		message := events.NewBusinessEvent("msg-"+event.ID, event)
		require.NoError(t, manager.HandleBusinessEvent(ctx, &message), event.ID)
	}

	manager.Wait()
	assert.Empty(t, actions.types())

	manager.Shutdown(ctx)

	message := events.NewBusinessEvent("msg-4", models.Event{ID: "evt-4", Type: models.TriggerClientCreated, TenantID: "tenant-1"})
	require.ErrorIs(t, manager.HandleBusinessEvent(ctx, &message), workflow.ErrManagerClosed)
}

func TestManager_HandleBusinessEvent(t *testing.T) {
	actions := newRecorder()
	h := newHarness(t, actions)
	manager := newManager(h)

	w := testutil.CreateTestWorkflow(t, testutil.WithTrigger(models.WorkflowTrigger{Type: models.TriggerClientCreated}))
	h.save(t, w)

	event := events.NewBusinessEvent("msg-1", models.Event{
		ID:       "evt-1",
		Type:     models.TriggerClientCreated,
		TenantID: "tenant-1",
		Payload:  completedPayload,
	})

	require.NoError(t, manager.HandleBusinessEvent(context.Background(), &event))
	manager.Wait()

	assert.Equal(t, []models.ActionType{models.ActionSendEmail}, actions.types())
}

func TestManager_Shutdown(t *testing.T) {
	h := newHarness(t, newRecorder())
	manager := newManager(h)
	ctx := context.Background()

	w := testutil.CreateTestWorkflow(t, testutil.WithActions(testutil.WaitAction(1, 5), testutil.TagAction(2)))
	h.save(t, w)

	submitted, err := manager.Dispatch(ctx, models.Event{Type: models.TriggerAppointmentCompleted, TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, submitted)
	manager.Wait()

	abandoned := manager.Shutdown(ctx)
	require.Len(t, abandoned, 1)
	assert.Equal(t, w.ID, abandoned[0].Workflow.ID)

	_, err = manager.Dispatch(ctx, models.Event{Type: models.TriggerAppointmentCompleted, TenantID: "tenant-1"})
	require.ErrorIs(t, err, workflow.ErrManagerClosed)
}
