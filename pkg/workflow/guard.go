package workflow

import (
	"context"
	"sync"
	"time"
)

// ExecutionGuard enforces a single in-flight execution per workflow. A held
// guard spans the whole pipeline, including time spent suspended on a delay.
type ExecutionGuard interface {
	// Acquire reports false when the workflow is already held.
	Acquire(ctx context.Context, workflowID string) (bool, error)
	Release(ctx context.Context, workflowID string) error
	// Extend keeps a held guard alive for at least d from now. Called before
	// suspending so that a long delay cannot outlive the hold.
	Extend(ctx context.Context, workflowID string, d time.Duration) error
}

// MemoryGuard is a process-local ExecutionGuard.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, workflowID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[workflowID]; ok {
		return false, nil
	}

	g.held[workflowID] = struct{}{}

	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, workflowID string) error {
	g.mu.Lock()
	delete(g.held, workflowID)
	g.mu.Unlock()

	return nil
}

// Extend is a no-op: a memory hold lasts until Release.
func (g *MemoryGuard) Extend(context.Context, string, time.Duration) error {
	return nil
}

// Held reports whether the workflow currently has an execution in flight.
func (g *MemoryGuard) Held(workflowID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.held[workflowID]

	return ok
}
