// Package registry maps action types to the executors that perform them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/protocol"
)

// ErrActionNotRegistered is returned when no executor serves an action type.
var ErrActionNotRegistered = errors.New("action type not registered")

// Registry dispatches action requests to the executor registered for their type.
// It implements protocol.ActionExecutor itself.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[models.ActionType]protocol.ActionExecutor
	fallback  protocol.ActionExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "action_registry"),
		executors: make(map[models.ActionType]protocol.ActionExecutor),
	}
}

// Register binds an executor to one or more action types, replacing previous bindings.
func (r *Registry) Register(executor protocol.ActionExecutor, actionTypes ...models.ActionType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, actionType := range actionTypes {
		r.executors[actionType] = executor
		r.logger.Debug("Registered action executor", "action_type", actionType)
	}
}

// SetFallback sets the executor used for types without an explicit binding.
func (r *Registry) SetFallback(executor protocol.ActionExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallback = executor
}

// Registered lists the action types with an explicit binding, sorted.
func (r *Registry) Registered() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.executors))
	for actionType := range r.executors {
		types = append(types, actionType)
	}

	slices.Sort(types)

	return types
}

// HealthCheck is unhealthy when no executor can serve any action.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.executors) == 0 && r.fallback == nil {
		return "No action executors registered", false
	}

	return fmt.Sprintf("%d action executors registered", len(r.executors)), true
}

func (r *Registry) Execute(ctx context.Context, req protocol.ActionRequest) (any, error) {
	r.mu.RLock()
	executor, ok := r.executors[req.Action.Type]
	if !ok {
		executor = r.fallback
	}
	r.mu.RUnlock()

	if executor == nil {
		return nil, fmt.Errorf("%w: %s", ErrActionNotRegistered, req.Action.Type)
	}

	return executor.Execute(ctx, req)
}
