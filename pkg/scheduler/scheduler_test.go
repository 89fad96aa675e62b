package scheduler_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/dukex/automation/pkg/persistence/file"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/dukex/automation/pkg/scheduler"
	"github.com/dukex/automation/pkg/testutil"
	"github.com/dukex/automation/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type dispatchRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (d *dispatchRecorder) Dispatch(_ context.Context, event models.Event) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, event)

	return 1, nil
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.events)
}

func (d *dispatchRecorder) last() models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.events[len(d.events)-1]
}

type fixture struct {
	store      persistence.Persistence
	clock      *clockwork.FakeClock
	dispatched *dispatchRecorder
	scheduler  *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      file.NewPersistence(t.TempDir()),
		clock:      clockwork.NewFakeClockAt(testutil.T0),
		dispatched: &dispatchRecorder{},
	}

	f.scheduler = scheduler.New(
		f.store.WorkflowRepository(),
		f.store.ScheduleRepository(),
		f.dispatched,
		slog.New(slog.DiscardHandler),
		scheduler.WithClock(f.clock),
	)

	return f
}

func (f *fixture) save(t *testing.T, w *models.Workflow) {
	t.Helper()

	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), w))
}

func (f *fixture) state(t *testing.T, workflowID string) *persistence.ScheduleState {
	t.Helper()

	state, err := f.store.ScheduleRepository().Get(context.Background(), workflowID)
	require.NoError(t, err)

	return state
}

func (f *fixture) sweep(t *testing.T) {
	t.Helper()

	require.NoError(t, f.scheduler.Sweep(context.Background()))
}

func dailyWorkflow(t *testing.T) *models.Workflow {
	return testutil.CreateTestWorkflow(t, testutil.WithTrigger(testutil.ScheduledTrigger(models.Schedule{
		Type:          models.ScheduleTypeRecurring,
		Interval:      models.IntervalDays,
		IntervalValue: 1,
	})))
}

func TestScheduler_RecurringAdvancesBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	w := dailyWorkflow(t)
	f.save(t, w)

	f.sweep(t)
	assert.Equal(t, 0, f.dispatched.count())
	require.NotNil(t, f.state(t, w.ID).NextRunAt)
	assert.True(t, testutil.T0.Add(day).Equal(*f.state(t, w.ID).NextRunAt))
	assert.Equal(t, []string{w.ID}, f.scheduler.Tracked("tenant-1"))

	f.clock.Advance(day)
	f.sweep(t)
	require.Equal(t, 1, f.dispatched.count())

	event := f.dispatched.last()
	assert.Equal(t, models.TriggerScheduled, event.Type)
	assert.Equal(t, w.ID, event.TargetWorkflowID)
	assert.Equal(t, w.TenantID, event.TenantID)
	assert.Equal(t, testutil.T0.Add(day).Format(time.RFC3339), event.Payload["scheduled_at"])

	state := f.state(t, w.ID)
	assert.True(t, testutil.T0.Add(2*day).Equal(*state.NextRunAt))
	assert.True(t, testutil.T0.Add(day).Equal(*state.LastRunAt))

	// the same slot never fires twice
	f.sweep(t)
	assert.Equal(t, 1, f.dispatched.count())

	f.clock.Advance(day)
	f.sweep(t)
	assert.Equal(t, 2, f.dispatched.count())
}

func TestScheduler_OnceFiresOnlyOnce(t *testing.T) {
	f := newFixture(t)

	date := testutil.T0.Add(time.Hour)
	w := testutil.CreateTestWorkflow(t, testutil.WithTrigger(testutil.ScheduledTrigger(models.Schedule{
		Type: models.ScheduleTypeOnce,
		Date: &date,
	})))
	f.save(t, w)

	f.sweep(t)
	assert.Equal(t, 0, f.dispatched.count())

	f.clock.Advance(2 * time.Hour)
	f.sweep(t)
	f.sweep(t)
	f.clock.Advance(day)
	f.sweep(t)
	assert.Equal(t, 1, f.dispatched.count())

	state := f.state(t, w.ID)
	assert.True(t, state.FiredOnce)
	assert.Nil(t, state.NextRunAt)

	stored, err := f.store.WorkflowRepository().GetByID(context.Background(), w.TenantID, w.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestScheduler_ScheduleChangeResetsState(t *testing.T) {
	f := newFixture(t)
	w := dailyWorkflow(t)
	f.save(t, w)
	f.sweep(t)

	f.clock.Advance(time.Hour)

	_, err := w.UpdateTrigger(f.clock.Now(), testutil.ScheduledTrigger(models.Schedule{
		Type:          models.ScheduleTypeRecurring,
		Interval:      models.IntervalHours,
		IntervalValue: 2,
	}))
	require.NoError(t, err)
	require.NoError(t, f.store.WorkflowRepository().Update(context.Background(), w))

	f.sweep(t)

	state := f.state(t, w.ID)
	assert.Equal(t, w.Trigger.Schedule.Fingerprint(), state.Fingerprint)
	assert.True(t, testutil.T0.Add(3*time.Hour).Equal(*state.NextRunAt))
}

func TestScheduler_ForgetsDeletedWorkflowsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	deleted := dailyWorkflow(t)
	paused := dailyWorkflow(t)
	f.save(t, deleted)
	f.save(t, paused)
	f.sweep(t)
	assert.Len(t, f.scheduler.Tracked("tenant-1"), 2)

	require.NoError(t, f.store.WorkflowRepository().Delete(ctx, deleted.TenantID, deleted.ID))

	paused.Deactivate(f.clock.Now())
	require.NoError(t, f.store.WorkflowRepository().Update(ctx, paused))

	f.sweep(t)
	assert.Empty(t, f.scheduler.Tracked("tenant-1"))

	_, err := f.store.ScheduleRepository().Get(ctx, deleted.ID)
	require.ErrorIs(t, err, persistence.ErrScheduleStateNotFound)

	_, err = f.store.ScheduleRepository().Get(ctx, paused.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * day)
	f.sweep(t)
	assert.Equal(t, 0, f.dispatched.count())
}

func TestScheduler_StartSweepsOnTicks(t *testing.T) {
	f := newFixture(t)
	w := dailyWorkflow(t)
	f.save(t, w)

	ctx := context.Background()
	require.NoError(t, f.scheduler.Start(ctx))
	require.ErrorIs(t, f.scheduler.Start(ctx), scheduler.ErrAlreadyStarted)

	require.Eventually(t, func() bool { return len(f.scheduler.Tracked("tenant-1")) == 1 }, 5*time.Second, 10*time.Millisecond)

	f.clock.Advance(day)

	require.Eventually(t, func() bool { return f.dispatched.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	f.scheduler.Stop()
	f.scheduler.Stop()
}

func TestScheduler_DrivesExecutions(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(testutil.T0)
	logger := slog.New(slog.DiscardHandler)

	var (
		mu    sync.Mutex
		calls int
	)

	actions := protocol.ActionExecutorFunc(func(context.Context, protocol.ActionRequest) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()

		return nil, nil
	})

	executor := workflow.NewExecutor(actions, store.WorkflowRepository(), store.ExecutionRepository(), logger, workflow.WithClock(clock))
	manager := workflow.NewManager(
		workflow.NewDispatcher(store.WorkflowRepository(), logger),
		workflow.NewLanes(executor, store.WorkflowRepository(), logger, 2, 0),
		executor,
		logger,
	)
	sched := scheduler.New(store.WorkflowRepository(), store.ScheduleRepository(), manager, logger, scheduler.WithClock(clock))

	w := dailyWorkflow(t)
	other := dailyWorkflow(t)
	require.NoError(t, store.WorkflowRepository().Save(ctx, w))

	require.NoError(t, sched.Sweep(ctx))

	// created later, so not due on the first day
	clock.Advance(time.Hour)
	other.CreatedAt = clock.Now()
	require.NoError(t, store.WorkflowRepository().Save(ctx, other))
	require.NoError(t, sched.Sweep(ctx))

	clock.Advance(day - time.Hour)
	require.NoError(t, sched.Sweep(ctx))
	manager.Wait()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	history, err := store.ExecutionRepository().GetByWorkflow(ctx, w.TenantID, w.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TriggerScheduled, history[0].TriggerType)

	otherHistory, err := store.ExecutionRepository().GetByWorkflow(ctx, other.TenantID, other.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, otherHistory)
}
