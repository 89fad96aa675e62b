package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dukex/automation/pkg/events"
	"github.com/dukex/automation/pkg/models"
)

// Manager is the entry point for business events: it matches them against
// the tenant's workflows and hands each match to its lane.
type Manager struct {
	dispatcher *Dispatcher
	lanes      *Lanes
	executor   *Executor
	logger     *slog.Logger
	closed     atomic.Bool
}

func NewManager(dispatcher *Dispatcher, lanes *Lanes, executor *Executor, logger *slog.Logger) *Manager {
	return &Manager{
		dispatcher: dispatcher,
		lanes:      lanes,
		executor:   executor,
		logger:     logger.With("module", "workflow_manager"),
	}
}

// Ingest records a business event of a tenant and dispatches it. Executions
// run in the background; only validation and lookup errors are returned.
func (m *Manager) Ingest(ctx context.Context, eventType models.TriggerType, tenantID string, payload map[string]any) (*models.Event, error) {
	event := models.Event{
		ID:         m.executor.ids.NewID(),
		Type:       eventType,
		TenantID:   tenantID,
		Payload:    payload,
		OccurredAt: m.executor.clock.Now(),
	}

	if _, err := m.Dispatch(ctx, event); err != nil {
		return nil, err
	}

	return &event, nil
}

// Dispatch submits every workflow matching event and returns how many were
// submitted. Executions are detached from ctx's cancellation.
func (m *Manager) Dispatch(ctx context.Context, event models.Event) (int, error) {
	if m.closed.Load() {
		return 0, ErrManagerClosed
	}

	if !event.Type.Valid() {
		return 0, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.Type)
	}

	if event.TenantID == "" {
		return 0, fmt.Errorf("%w: tenant id is required", ErrInvalidEvent)
	}

	if err := validateTriggerData(event.Payload); err != nil {
		return 0, err
	}

	matched, err := m.dispatcher.Match(ctx, event)
	if err != nil {
		return 0, err
	}

	runCtx := context.WithoutCancel(ctx)
	submitted := 0

	for _, workflow := range matched {
		if err := m.lanes.Submit(runCtx, workflow, event.Payload); err != nil {
			m.logger.WarnContext(ctx, "Failed to submit workflow execution",
				"workflow_id", workflow.ID,
				"event_id", event.ID,
				"error", err)

			continue
		}

		submitted++
	}

	return submitted, nil
}

// HandleBusinessEvent is the event bus handler for business events. Invalid
// events are logged and dropped, since redelivery can never make them valid.
func (m *Manager) HandleBusinessEvent(ctx context.Context, event any) error {
	received, ok := event.(*events.BusinessEvent)
	if !ok {
		m.logger.WarnContext(ctx, "Dropping unexpected message", "type", fmt.Sprintf("%T", event))

		return nil
	}

	_, err := m.Dispatch(ctx, received.Event)
	if errors.Is(err, ErrInvalidEvent) {
		m.logger.WarnContext(ctx, "Dropping invalid business event",
			"event_id", received.Event.ID,
			"tenant_id", received.Event.TenantID,
			"error", err)

		return nil
	}

	return err
}

// Wait blocks until running executions return or suspend.
func (m *Manager) Wait() {
	m.lanes.Wait()
}

// Shutdown rejects new events, waits for running executions up to ctx's
// deadline and stops pending delays. Abandoned continuations are returned.
func (m *Manager) Shutdown(ctx context.Context) []*Continuation {
	m.closed.Store(true)

	done := make(chan struct{})

	go func() {
		m.lanes.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Shutdown deadline reached with executions still running")
	}

	return m.executor.Shutdown(ctx)
}
