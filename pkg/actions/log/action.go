// Package log provides a dry-run action executor that logs each action instead of performing it.
package log

import (
	"context"
	"log/slog"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/dukex/automation/pkg/template"
)

// Executor logs the rendered config of every action it receives and reports success.
type Executor struct {
	logger *slog.Logger
	level  slog.Level
}

func NewExecutor(logger *slog.Logger, level slog.Level) *Executor {
	return &Executor{
		logger: logger.With("module", "log_action"),
		level:  level,
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ActionRequest) (any, error) {
	config := renderConfig(models.ConfigToMap(req.Action.Config), req.Context)

	e.logger.Log(ctx, e.level, "Executing action",
		"execution_id", req.ExecutionID,
		"workflow_id", req.WorkflowID,
		"tenant_id", req.TenantID,
		"action_id", req.Action.ID,
		"action_type", req.Action.Type,
		"config", config,
	)

	return map[string]any{
		"dry_run": true,
		"type":    string(req.Action.Type),
		"config":  config,
	}, nil
}

func renderConfig(config map[string]any, data map[string]any) map[string]any {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			rendered[key] = template.Render(v, data)
		case map[string]any:
			rendered[key] = renderConfig(v, data)
		default:
			rendered[key] = v
		}
	}

	return rendered
}
