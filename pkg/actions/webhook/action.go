// Package webhook provides the WEBHOOK_CALL action executor.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/dukex/automation/pkg/template"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

var (
	// ErrInvalidConfig is returned when the action does not carry a webhook config.
	ErrInvalidConfig = errors.New("invalid webhook config")
	// ErrUnexpectedStatus is returned when the endpoint answers with a 4xx or 5xx status.
	ErrUnexpectedStatus = errors.New("unexpected webhook response status")
)

// Executor calls the configured URL once per action. Placeholders in the URL,
// headers and body are rendered from the execution context.
type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(client *http.Client, logger *slog.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Executor{
		client: client,
		logger: logger.With("module", "webhook_action"),
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ActionRequest) (any, error) {
	var config *models.WebhookCallConfig

	switch c := req.Action.Config.(type) {
	case *models.WebhookCallConfig:
		config = c
	case models.WebhookCallConfig:
		config = &c
	}

	if config == nil {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidConfig, req.Action.Config)
	}

	httpReq, err := e.buildRequest(ctx, config, req)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(
		"execution_id", req.ExecutionID,
		"action_id", req.Action.ID,
		"method", httpReq.Method,
		"url", httpReq.URL.Redacted(),
	)
	logger.InfoContext(ctx, "Calling webhook")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	return e.processResponse(ctx, resp, logger)
}

func (e *Executor) buildRequest(ctx context.Context, config *models.WebhookCallConfig, req protocol.ActionRequest) (*http.Request, error) {
	method := strings.ToUpper(config.Method)
	if method == "" {
		method = http.MethodPost
	}

	body, err := requestBody(config, req)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, template.Render(config.URL, req.Context), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	if body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range template.RenderMap(config.Headers, req.Context) {
		httpReq.Header.Set(key, value)
	}

	httpReq.Header.Set("X-Workflow-Id", req.WorkflowID)
	httpReq.Header.Set("X-Execution-Id", req.ExecutionID)

	return httpReq, nil
}

// requestBody renders the configured body, or sends the execution context as
// JSON when no body is configured and the method carries one. Values rendered
// into a JSON body are escaped unless a non-JSON Content-Type is configured.
func requestBody(config *models.WebhookCallConfig, req protocol.ActionRequest) (string, error) {
	if config.Body != "" {
		if !jsonContent(config.Headers) {
			return template.Render(config.Body, req.Context), nil
		}

		return template.RenderJSON(config.Body, req.Context), nil
	}

	switch strings.ToUpper(config.Method) {
	case http.MethodGet, http.MethodDelete:
		return "", nil
	}

	payload, err := json.Marshal(map[string]any{
		"execution_id": req.ExecutionID,
		"workflow_id":  req.WorkflowID,
		"tenant_id":    req.TenantID,
		"context":      req.Context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	return string(payload), nil
}

func jsonContent(headers map[string]string) bool {
	for key, value := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return strings.Contains(strings.ToLower(value), "json")
		}
	}

	return true
}

func (e *Executor) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		logger.WarnContext(ctx, "Webhook answered with error status", "status_code", resp.StatusCode)

		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	logger.InfoContext(ctx, "Webhook completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}
