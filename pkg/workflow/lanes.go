package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultQueueCapacity = 16
	DefaultWorkers       = 8
)

// Lanes serializes executions per workflow. A workflow with an execution in
// flight, suspended ones included, queues further submissions in FIFO order.
// Different workflows run concurrently, bounded by the worker pool.
type Lanes struct {
	executor  *Executor
	workflows persistence.WorkflowRepository
	logger    *slog.Logger
	workers   *semaphore.Weighted
	capacity  int

	mu      sync.Mutex
	idle    *sync.Cond
	running int
	lanes   map[string]*lane
}

type lane struct {
	queue []submission
}

type submission struct {
	ctx         context.Context
	workflow    *models.Workflow
	triggerData map[string]any
}

func NewLanes(executor *Executor, workflows persistence.WorkflowRepository, logger *slog.Logger, workers int64, capacity int) *Lanes {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	l := &Lanes{
		executor:  executor,
		workflows: workflows,
		logger:    logger.With("module", "workflow_lanes"),
		workers:   semaphore.NewWeighted(workers),
		capacity:  capacity,
		lanes:     make(map[string]*lane),
	}
	l.idle = sync.NewCond(&l.mu)

	executor.OnFinish(l.advance)

	return l
}

// Submit starts the execution right away when the workflow is idle and
// queues it otherwise. It never waits for the execution itself.
func (l *Lanes) Submit(ctx context.Context, workflow *models.Workflow, triggerData map[string]any) error {
	s := submission{ctx: ctx, workflow: workflow, triggerData: triggerData}

	l.mu.Lock()

	if ln, busy := l.lanes[workflow.ID]; busy {
		if len(ln.queue) >= l.capacity {
			l.mu.Unlock()

			return ErrExecutionQueueFull
		}

		ln.queue = append(ln.queue, s)
		depth := len(ln.queue)
		l.mu.Unlock()

		l.logger.DebugContext(ctx, "Queued workflow execution", "workflow_id", workflow.ID, "queue_depth", depth)

		return nil
	}

	l.lanes[workflow.ID] = &lane{}
	l.running++
	l.mu.Unlock()

	go l.run(s, false)

	return nil
}

// Depth is the number of queued executions of a workflow, not counting the running one.
func (l *Lanes) Depth(workflowID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ln, ok := l.lanes[workflowID]; ok {
		return len(ln.queue)
	}

	return 0
}

// Busy reports whether the workflow has an execution in flight.
func (l *Lanes) Busy(workflowID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.lanes[workflowID]

	return ok
}

// Wait blocks until no lane is running synchronously. Suspended executions
// are not waited for.
func (l *Lanes) Wait() {
	l.mu.Lock()
	for l.running > 0 {
		l.idle.Wait()
	}
	l.mu.Unlock()
}

// run executes one submission. Queued submissions reload the workflow, since
// the definition may have changed while they waited.
func (l *Lanes) run(s submission, queued bool) {
	defer l.done()

	workflow := s.workflow

	if err := l.workers.Acquire(s.ctx, 1); err != nil {
		l.logger.WarnContext(s.ctx, "Dropping workflow execution", "workflow_id", workflow.ID, "error", err)
		l.advance(workflow.ID)

		return
	}
	defer l.workers.Release(1)

	if queued {
		current, err := l.workflows.GetByID(s.ctx, workflow.TenantID, workflow.ID)

		switch {
		case err == nil:
			workflow = current
		case persistence.IsWorkflowNotFound(err):
			l.logger.InfoContext(s.ctx, "Workflow deleted while queued", "workflow_id", workflow.ID)
			l.advance(workflow.ID)

			return
		default:
			l.logger.WarnContext(s.ctx, "Failed to reload queued workflow, using snapshot", "workflow_id", workflow.ID, "error", err)
		}
	}

	result, err := l.executor.ExecuteWorkflow(s.ctx, workflow, s.triggerData)
	if err != nil {
		l.logger.WarnContext(s.ctx, "Workflow execution not started", "workflow_id", workflow.ID, "error", err)
		l.advance(workflow.ID)

		return
	}

	if result.Suspended {
		l.logger.DebugContext(s.ctx, "Lane held by suspended execution",
			"workflow_id", workflow.ID,
			"execution_id", result.ExecutionID)
	}
}

func (l *Lanes) done() {
	l.mu.Lock()
	l.running--
	if l.running == 0 {
		l.idle.Broadcast()
	}
	l.mu.Unlock()
}

// advance starts the next queued submission of a workflow or frees its lane.
func (l *Lanes) advance(workflowID string) {
	l.mu.Lock()

	ln, ok := l.lanes[workflowID]
	if !ok {
		l.mu.Unlock()

		return
	}

	if len(ln.queue) == 0 {
		delete(l.lanes, workflowID)
		l.mu.Unlock()

		return
	}

	next := ln.queue[0]
	ln.queue = ln.queue[1:]
	l.running++
	l.mu.Unlock()

	go l.run(next, true)
}
