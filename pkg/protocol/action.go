// Package protocol defines the contract between the execution engine and pluggable action executors.
package protocol

import (
	"context"

	"github.com/dukex/automation/pkg/models"
)

// ActionRequest is a single action invocation within an execution.
type ActionRequest struct {
	ExecutionID string
	WorkflowID  string
	TenantID    string
	Action      models.WorkflowAction

	// Context holds the trigger data plus the results of earlier actions under "actions".
	Context map[string]any
}

// ActionExecutor performs the side effect of an action. It is called at most once per
// action per execution and must honor ctx cancellation.
type ActionExecutor interface {
	Execute(ctx context.Context, req ActionRequest) (any, error)
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, req ActionRequest) (any, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, req ActionRequest) (any, error) {
	return f(ctx, req)
}
