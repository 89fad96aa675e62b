// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	logaction "github.com/dukex/automation/pkg/actions/log"
	"github.com/dukex/automation/pkg/actions/webhook"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/registry"
)

const webhookTimeout = 15 * time.Second

// NewRegistry wires the native executors. Action types without a concrete
// integration fall back to the dry-run log executor.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	reg.Register(webhook.NewExecutor(&http.Client{Timeout: webhookTimeout}, log), models.ActionWebhookCall)
	reg.SetFallback(logaction.NewExecutor(log, slog.LevelInfo))

	return reg
}
