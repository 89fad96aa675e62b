package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is how often due schedules are checked.
const DefaultInterval = time.Minute

var ErrAlreadyStarted = errors.New("scheduler already started")

// Dispatcher receives the synthetic SCHEDULED events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.Event) (int, error)
}

// Scheduler periodically compares the next run of every active SCHEDULED
// workflow with the clock and dispatches the due ones. State is persisted so a
// restart neither skips nor repeats a slot.
type Scheduler struct {
	workflows  persistence.WorkflowRepository
	states     persistence.ScheduleRepository
	dispatcher Dispatcher
	logger     *slog.Logger
	clock      clockwork.Clock
	ids        models.IDGenerator
	interval   time.Duration

	sweepMu sync.Mutex

	mu      sync.RWMutex
	tracked map[string][]string
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithIDGenerator(ids models.IDGenerator) Option {
	return func(s *Scheduler) { s.ids = ids }
}

func New(
	workflows persistence.WorkflowRepository,
	states persistence.ScheduleRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		workflows:  workflows,
		states:     states,
		dispatcher: dispatcher,
		logger:     logger.With("module", "scheduler"),
		clock:      clockwork.NewRealClock(),
		ids:        models.UUIDGenerator{},
		interval:   DefaultInterval,
		tracked:    make(map[string][]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start sweeps once and then on every tick until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ticker := s.clock.NewTicker(s.interval)

	go func() {
		defer close(s.done)
		defer ticker.Stop()

		s.sweepAndLog(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweepAndLog(ctx)
			}
		}
	}()

	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval)

	return nil
}

// Stop ends the sweep loop and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	s.logger.Info("Scheduler stopped")
}

// Tracked returns the ids of the tenant's scheduled workflows seen by the last sweep.
func (s *Scheduler) Tracked(tenantID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.tracked[tenantID])
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Scheduler sweep failed", "error", err)
	}
}

// Sweep reconciles scheduler state with the stored workflows and dispatches
// every due workflow once.
func (s *Scheduler) Sweep(ctx context.Context) error {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	now := s.clock.Now()

	workflows, err := s.workflows.FindScheduledWorkflows(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to find scheduled workflows: %w", err)
	}

	states, err := s.states.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list schedule states: %w", err)
	}

	known := make(map[string]*persistence.ScheduleState, len(states))
	for _, state := range states {
		known[state.WorkflowID] = state
	}

	tracked := make(map[string][]string)

	for _, workflow := range workflows {
		if !workflow.Trigger.HasSchedule() {
			continue
		}

		tracked[workflow.TenantID] = append(tracked[workflow.TenantID], workflow.ID)

		state := known[workflow.ID]
		delete(known, workflow.ID)

		state, err = s.reconcile(ctx, workflow, state, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to reconcile schedule", "workflow_id", workflow.ID, "error", err)

			continue
		}

		if state.NextRunAt == nil || now.Before(*state.NextRunAt) {
			continue
		}

		s.fire(ctx, workflow, state, now)
	}

	s.forget(ctx, known)

	for tenant := range tracked {
		slices.Sort(tracked[tenant])
	}

	s.mu.Lock()
	s.tracked = tracked
	s.mu.Unlock()

	return nil
}

// reconcile creates the state of a newly seen workflow and resets it when the
// schedule changed since it was computed.
func (s *Scheduler) reconcile(ctx context.Context, workflow *models.Workflow, state *persistence.ScheduleState, now time.Time) (*persistence.ScheduleState, error) {
	schedule := workflow.Trigger.Schedule
	fingerprint := schedule.Fingerprint()

	if state != nil && state.Fingerprint == fingerprint {
		return state, nil
	}

	anchor := workflow.CreatedAt
	if state != nil {
		anchor = now
	}

	next := &persistence.ScheduleState{
		WorkflowID:  workflow.ID,
		TenantID:    workflow.TenantID,
		Fingerprint: fingerprint,
		UpdatedAt:   now,
	}

	if at, ok := NextRun(schedule, anchor, nil, now); ok {
		next.NextRunAt = &at
	}

	if err := s.states.Save(ctx, next); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Tracking scheduled workflow",
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID,
		"schedule_type", schedule.Type,
		"next_run_at", next.NextRunAt)

	return next, nil
}

// fire advances and persists the state before dispatching, so a slow or
// crashing execution can never make the same slot fire twice.
func (s *Scheduler) fire(ctx context.Context, workflow *models.Workflow, state *persistence.ScheduleState, now time.Time) {
	schedule := workflow.Trigger.Schedule
	slot := *state.NextRunAt

	state.LastRunAt = &slot
	state.NextRunAt = nil
	state.UpdatedAt = now

	if schedule.Type == models.ScheduleTypeOnce {
		state.FiredOnce = true
	} else if next, ok := NextRun(schedule, workflow.CreatedAt, &slot, now); ok {
		state.NextRunAt = &next
	}

	logger := s.logger.With("workflow_id", workflow.ID, "tenant_id", workflow.TenantID)

	if err := s.states.Save(ctx, state); err != nil {
		logger.ErrorContext(ctx, "Failed to advance schedule, not dispatching", "error", err)

		return
	}

	event := models.Event{
		ID:       s.ids.NewID(),
		Type:     models.TriggerScheduled,
		TenantID: workflow.TenantID,
		Payload: map[string]any{
			"workflow_id":  workflow.ID,
			"scheduled_at": slot.UTC().Format(time.RFC3339),
			"fired_at":     now.UTC().Format(time.RFC3339),
		},
		OccurredAt:       now,
		TargetWorkflowID: workflow.ID,
	}

	submitted, err := s.dispatcher.Dispatch(ctx, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to dispatch scheduled workflow", "event_id", event.ID, "error", err)

		return
	}

	logger.InfoContext(ctx, "Dispatched scheduled workflow",
		"event_id", event.ID,
		"scheduled_at", slot,
		"next_run_at", state.NextRunAt,
		"submitted", submitted)
}

// forget drops the state of workflows that were deleted or lost their
// schedule. Deactivated workflows keep their state so reactivation does not
// fire a ONCE schedule again.
func (s *Scheduler) forget(ctx context.Context, leftovers map[string]*persistence.ScheduleState) {
	for id, state := range leftovers {
		workflow, err := s.workflows.GetByID(ctx, state.TenantID, id)

		switch {
		case err == nil && workflow.Trigger.HasSchedule():
			continue
		case err != nil && !persistence.IsWorkflowNotFound(err):
			s.logger.WarnContext(ctx, "Failed to look up unscheduled workflow", "workflow_id", id, "error", err)

			continue
		}

		if err := s.states.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete schedule state", "workflow_id", id, "error", err)

			continue
		}

		s.logger.InfoContext(ctx, "Stopped tracking workflow", "workflow_id", id)
	}
}
