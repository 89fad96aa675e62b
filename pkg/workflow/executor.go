package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/automation/pkg/conditions"
	"github.com/dukex/automation/pkg/eventbus"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/otelhelper"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultActionTimeout bounds a single action executor call.
const DefaultActionTimeout = 30 * time.Second

// ActionsContextKey holds earlier action results in the execution context, keyed by action id.
const ActionsContextKey = "actions"

// Executor runs the action pipeline of a workflow.
type Executor struct {
	actions   protocol.ActionExecutor
	workflows persistence.WorkflowRepository
	history   persistence.ExecutionRepository
	logger    *slog.Logger

	facts         eventbus.FactPublisher
	delays        DelayScheduler
	guard         ExecutionGuard
	clock         clockwork.Clock
	ids           models.IDGenerator
	tracer        trace.Tracer
	actionTimeout time.Duration

	hooksMu sync.RWMutex
	hooks   []func(workflowID string)
}

type Option func(*Executor)

func WithActionTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.actionTimeout = timeout
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

func WithIDGenerator(ids models.IDGenerator) Option {
	return func(e *Executor) { e.ids = ids }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithFactPublisher publishes the WorkflowExecuted/WorkflowFailed facts of drained pipelines.
func WithFactPublisher(facts eventbus.FactPublisher) Option {
	return func(e *Executor) { e.facts = facts }
}

// WithDelayScheduler replaces the default timer based scheduler. It must use
// the same clock as the executor.
func WithDelayScheduler(delays DelayScheduler) Option {
	return func(e *Executor) { e.delays = delays }
}

// WithExecutionGuard replaces the process-local in-flight guard, e.g. with a Redis lock.
func WithExecutionGuard(guard ExecutionGuard) Option {
	return func(e *Executor) { e.guard = guard }
}

func NewExecutor(
	actions protocol.ActionExecutor,
	workflows persistence.WorkflowRepository,
	history persistence.ExecutionRepository,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	e := &Executor{
		actions:       actions,
		workflows:     workflows,
		history:       history,
		logger:        logger.With("module", "workflow_executor"),
		clock:         clockwork.NewRealClock(),
		ids:           models.UUIDGenerator{},
		tracer:        otelhelper.NoopTracer(),
		actionTimeout: DefaultActionTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.delays == nil {
		e.delays = NewTimerScheduler(e.clock)
	}

	if e.guard == nil {
		e.guard = NewMemoryGuard()
	}

	return e
}

// OnFinish registers fn to run after every execution that acquired the
// workflow finishes, including no-op runs of workflows that can no longer be triggered.
func (e *Executor) OnFinish(fn func(workflowID string)) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hooksMu.Unlock()
}

// ExecuteWorkflow runs workflow's actions in order against triggerData. When an
// action carries a delay the call returns a suspended result and the rest of the
// pipeline continues on the delay scheduler. Action failures never abort the
// pipeline; they are collected into the result.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, triggerData map[string]any) (*models.ExecutionResult, error) {
	if err := validateTriggerData(triggerData); err != nil {
		return nil, err
	}

	acquired, err := e.guard.Acquire(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire workflow %s: %w", workflow.ID, err)
	}

	if !acquired {
		return nil, ErrExecutionInFlight
	}

	logger := e.logger.With(
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID,
	)

	if !workflow.CanBeTriggered(triggerData) {
		logger.InfoContext(ctx, "Workflow can no longer be triggered, skipping execution")
		e.finish(ctx, workflow.ID)

		return &models.ExecutionResult{WorkflowID: workflow.ID, Success: true}, nil
	}

	continuation := &Continuation{
		ExecutionID: e.ids.NewID(),
		Workflow:    workflow.Clone(),
		Context:     newExecutionContext(triggerData),
		Record: &models.WorkflowExecution{
			WorkflowID:  workflow.ID,
			TenantID:    workflow.TenantID,
			TriggerType: workflow.Trigger.Type,
			TriggerData: maps.Clone(triggerData),
			Outcomes:    make([]models.ActionOutcome, 0, len(workflow.Actions)),
			StartedAt:   e.clock.Now(),
		},
	}
	continuation.Record.ID = continuation.ExecutionID
	continuation.Remaining = continuation.Workflow.Actions

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.TenantIDKey, workflow.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(workflow.Trigger.Type)),
		attribute.String(otelhelper.ExecutionIDKey, continuation.ExecutionID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting workflow execution",
		"execution_id", continuation.ExecutionID,
		"actions", len(continuation.Remaining))

	return e.drive(ctx, continuation, false), nil
}

// Pending lists pipelines waiting on a delay.
func (e *Executor) Pending() []*Continuation {
	return e.delays.Pending()
}

// Shutdown stops the delay scheduler and releases the workflows held by
// suspended pipelines. The abandoned continuations are returned.
func (e *Executor) Shutdown(ctx context.Context) []*Continuation {
	abandoned := e.delays.Stop()

	for _, c := range abandoned {
		if err := e.guard.Release(ctx, c.Workflow.ID); err != nil {
			e.logger.WarnContext(ctx, "Failed to release workflow", "workflow_id", c.Workflow.ID, "error", err)
		}

		e.logger.WarnContext(ctx, "Abandoning suspended execution",
			"execution_id", c.ExecutionID,
			"workflow_id", c.Workflow.ID,
			"resume_at", c.ResumeAt)
	}

	return abandoned
}

func (e *Executor) resume(ctx context.Context, c *Continuation) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.resume",
		attribute.String(otelhelper.TenantIDKey, c.Workflow.TenantID),
		attribute.String(otelhelper.WorkflowIDKey, c.Workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, c.ExecutionID),
	)
	defer span.End()

	e.logger.InfoContext(ctx, "Resuming workflow execution",
		"execution_id", c.ExecutionID,
		"workflow_id", c.Workflow.ID,
		"remaining", len(c.Remaining))

	e.drive(ctx, c, true)
}

// drive processes the remaining actions until the pipeline drains or
// suspends. resumed means the head action's delay has already elapsed.
func (e *Executor) drive(ctx context.Context, c *Continuation, resumed bool) *models.ExecutionResult {
	for ; len(c.Remaining) > 0; c.Remaining = c.Remaining[1:] {
		action := c.Remaining[0]
		elapsed := resumed
		resumed = false

		if !elapsed {
			if !conditions.Evaluate(action.Conditions, c.Context) {
				e.record(c, action, models.ActionStatusSkipped, nil, nil, e.clock.Now())

				continue
			}

			if action.Suspends() {
				resumeAt := e.clock.Now().Add(action.Delay.Duration())
				c.ResumeAt = resumeAt

				if err := e.guard.Extend(ctx, c.Workflow.ID, action.Delay.Duration()); err != nil {
					e.logger.WarnContext(ctx, "Failed to extend workflow hold across delay",
						"execution_id", c.ExecutionID,
						"workflow_id", c.Workflow.ID,
						"error", err)
				}

				// The continuation belongs to the scheduler once handed over.
				suspended := &models.ExecutionResult{
					ExecutionID:     c.ExecutionID,
					WorkflowID:      c.Workflow.ID,
					Success:         len(c.Record.Errors) == 0,
					ActionsExecuted: c.Record.ActionsExecuted,
					Errors:          append([]string(nil), c.Record.Errors...),
					Suspended:       true,
					ResumeAt:        &resumeAt,
				}

				err := e.delays.Schedule(c, e.resume)
				if err == nil {
					e.logger.InfoContext(ctx, "Workflow execution suspended",
						"execution_id", suspended.ExecutionID,
						"workflow_id", suspended.WorkflowID,
						"action_id", action.ID,
						"resume_at", resumeAt)

					return suspended
				}

				e.record(c, action, models.ActionStatusFailed, nil, err, e.clock.Now())

				continue
			}
		}

		if action.Type == models.ActionWaitDelay {
			e.record(c, action, models.ActionStatusWaited, nil, nil, e.clock.Now())

			continue
		}

		startedAt := e.clock.Now()
		result, err := e.runAction(ctx, c, action)

		if err != nil {
			e.logger.WarnContext(ctx, "Action failed",
				"execution_id", c.ExecutionID,
				"workflow_id", c.Workflow.ID,
				"action_id", action.ID,
				"action_type", action.Type,
				"error", err)
			e.record(c, action, models.ActionStatusFailed, nil, err, startedAt)

			continue
		}

		actionResults(c.Context)[action.ID] = result
		e.record(c, action, models.ActionStatusSucceeded, result, nil, startedAt)
	}

	return e.complete(ctx, c)
}

func (e *Executor) record(c *Continuation, action models.WorkflowAction, status models.ActionStatus, result any, err error, startedAt time.Time) {
	outcome := models.ActionOutcome{
		ActionID:    action.ID,
		Type:        action.Type,
		Order:       action.Order,
		Status:      status,
		Result:      result,
		StartedAt:   startedAt,
		CompletedAt: e.clock.Now(),
	}

	switch status {
	case models.ActionStatusFailed:
		msg := models.NewActionExecutionError(action.ID, err).Error()
		outcome.Error = msg
		c.Record.Errors = append(c.Record.Errors, msg)
	case models.ActionStatusSucceeded, models.ActionStatusWaited:
		c.Record.ActionsExecuted++
	case models.ActionStatusSkipped:
	}

	c.Record.Outcomes = append(c.Record.Outcomes, outcome)
}

// runAction calls the executor with the action timeout. The call runs on its
// own goroutine so an executor that ignores ctx cannot hang the pipeline.
func (e *Executor) runAction(ctx context.Context, c *Continuation, action models.WorkflowAction) (any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.action",
		attribute.String(otelhelper.WorkflowIDKey, c.Workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, c.ExecutionID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	req := protocol.ActionRequest{
		ExecutionID: c.ExecutionID,
		WorkflowID:  c.Workflow.ID,
		TenantID:    c.Workflow.TenantID,
		Action:      action,
		Context:     snapshotContext(c.Context),
	}

	type reply struct {
		result any
		err    error
	}

	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", ErrActionPanicked, r)}
			}
		}()

		result, err := e.actions.Execute(ctx, req)
		done <- reply{result: result, err: err}
	}()

	var out reply

	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = fmt.Errorf("action did not complete: %w", ctx.Err())
	}

	if out.err != nil {
		otelhelper.SetError(span, out.err)
	}

	return out.result, out.err
}

// complete closes the record once the pipeline has drained, updates the
// workflow's counters and hands the record to the history sink.
func (e *Executor) complete(ctx context.Context, c *Continuation) *models.ExecutionResult {
	now := e.clock.Now()
	c.Record.Complete(now)

	logger := e.logger.With(
		"execution_id", c.ExecutionID,
		"workflow_id", c.Workflow.ID,
		"tenant_id", c.Workflow.TenantID,
	)

	workflow, err := e.workflows.RecordExecution(ctx, c.Record, now)
	switch {
	case persistence.IsWorkflowNotFound(err):
		// deleted while running
	case err != nil:
		logger.ErrorContext(ctx, "Failed to record execution on workflow", "error", err)
	case e.facts != nil:
		if err := e.facts.PublishFacts(ctx, workflow.ExecutionFacts(now, c.Record)); err != nil {
			logger.ErrorContext(ctx, "Failed to publish execution facts", "error", err)
		}
	}

	if err := e.history.Append(ctx, c.Record); err != nil {
		logger.ErrorContext(ctx, "Failed to append execution history", "error", err)
	}

	logger.InfoContext(ctx, "Completed workflow execution",
		"success", c.Record.Success,
		"actions_executed", c.Record.ActionsExecuted,
		"errors", len(c.Record.Errors),
		"duration", c.Record.Duration())

	e.finish(ctx, c.Workflow.ID)

	return &models.ExecutionResult{
		ExecutionID:     c.ExecutionID,
		WorkflowID:      c.Workflow.ID,
		Success:         c.Record.Success,
		ActionsExecuted: c.Record.ActionsExecuted,
		Errors:          append([]string(nil), c.Record.Errors...),
	}
}

func (e *Executor) finish(ctx context.Context, workflowID string) {
	if err := e.guard.Release(ctx, workflowID); err != nil {
		e.logger.WarnContext(ctx, "Failed to release workflow", "workflow_id", workflowID, "error", err)
	}

	e.hooksMu.RLock()
	hooks := slices.Clone(e.hooks)
	e.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(workflowID)
	}
}

// validateTriggerData rejects payloads that collide with keys the pipeline
// writes into the execution context.
func validateTriggerData(triggerData map[string]any) error {
	if _, ok := triggerData[ActionsContextKey]; ok {
		return fmt.Errorf("%w: payload key %q is reserved", ErrInvalidEvent, ActionsContextKey)
	}

	return nil
}

func newExecutionContext(triggerData map[string]any) map[string]any {
	execCtx := make(map[string]any, len(triggerData)+1)
	maps.Copy(execCtx, triggerData)
	execCtx[ActionsContextKey] = make(map[string]any)

	return execCtx
}

func actionResults(execCtx map[string]any) map[string]any {
	results, ok := execCtx[ActionsContextKey].(map[string]any)
	if !ok {
		results = make(map[string]any)
		execCtx[ActionsContextKey] = results
	}

	return results
}

// snapshotContext copies the two levels the pipeline mutates, so an action
// still running past its timeout never races with later writes.
func snapshotContext(execCtx map[string]any) map[string]any {
	out := maps.Clone(execCtx)
	out[ActionsContextKey] = maps.Clone(actionResults(execCtx))

	return out
}
