package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence"
	"github.com/dukex/automation/pkg/persistence/file"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/dukex/automation/pkg/testutil"
	"github.com/dukex/automation/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("smtp unavailable")

// recorder is an action executor that remembers every call.
type recorder struct {
	mu    sync.Mutex
	calls []protocol.ActionRequest
	fail  map[models.ActionType]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[models.ActionType]error)}
}

func (r *recorder) Execute(_ context.Context, req protocol.ActionRequest) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, req)

	if err := r.fail[req.Action.Type]; err != nil {
		return nil, err
	}

	return map[string]any{"type": string(req.Action.Type), "ok": true}, nil
}

func (r *recorder) types() []models.ActionType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ActionType, len(r.calls))
	for i, call := range r.calls {
		out[i] = call.Action.Type
	}

	return out
}

func (r *recorder) call(i int) protocol.ActionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[i]
}

type factRecorder struct {
	mu    sync.Mutex
	facts []models.Fact
}

func (f *factRecorder) PublishFacts(_ context.Context, facts []models.Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.facts = append(f.facts, facts...)

	return nil
}

func (f *factRecorder) types() []models.FactType {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.FactType, len(f.facts))
	for i, fact := range f.facts {
		out[i] = fact.Type
	}

	return out
}

// holdRecorder is a memory guard that remembers how long each hold was extended.
type holdRecorder struct {
	*workflow.MemoryGuard

	mu       sync.Mutex
	extended map[string]time.Duration
}

func newHoldRecorder() *holdRecorder {
	return &holdRecorder{MemoryGuard: workflow.NewMemoryGuard(), extended: make(map[string]time.Duration)}
}

func (g *holdRecorder) Extend(_ context.Context, workflowID string, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.extended[workflowID] = d

	return nil
}

func (g *holdRecorder) extension(workflowID string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.extended[workflowID]
}

type harness struct {
	store    persistence.Persistence
	clock    *clockwork.FakeClock
	facts    *factRecorder
	executor *workflow.Executor
	finished chan string
}

func newHarness(t *testing.T, actions protocol.ActionExecutor, opts ...workflow.Option) *harness {
	t.Helper()

	h := &harness{
		store:    file.NewPersistence(t.TempDir()),
		clock:    clockwork.NewFakeClockAt(testutil.T0),
		facts:    &factRecorder{},
		finished: make(chan string, 64),
	}

	opts = append([]workflow.Option{
		workflow.WithClock(h.clock),
		workflow.WithFactPublisher(h.facts),
	}, opts...)

	h.executor = workflow.NewExecutor(
		actions,
		h.store.WorkflowRepository(),
		h.store.ExecutionRepository(),
		slog.New(slog.DiscardHandler),
		opts...,
	)
	h.executor.OnFinish(func(workflowID string) {
		select {
		case h.finished <- workflowID:
		default:
		}
	})

	return h
}

// waitFinished waits for the next execution to drain.
func (h *harness) waitFinished(t *testing.T) string {
	t.Helper()

	select {
	case id := <-h.finished:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish")

		return ""
	}
}

func (h *harness) save(t *testing.T, w *models.Workflow) {
	t.Helper()

	require.NoError(t, h.store.WorkflowRepository().Save(context.Background(), w))
}

func (h *harness) history(t *testing.T, w *models.Workflow) []*models.WorkflowExecution {
	t.Helper()

	executions, err := h.store.ExecutionRepository().GetByWorkflow(context.Background(), w.TenantID, w.ID, 0)
	require.NoError(t, err)

	return executions
}

func (h *harness) stored(t *testing.T, w *models.Workflow) *models.Workflow {
	t.Helper()

	current, err := h.store.WorkflowRepository().GetByID(context.Background(), w.TenantID, w.ID)
	require.NoError(t, err)

	return current
}
