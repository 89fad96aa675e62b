package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/automation/pkg/actions/webhook"
	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(config models.ActionConfig, data map[string]any) protocol.ActionRequest {
	return protocol.ActionRequest{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		TenantID:    "tenant-1",
		Action:      models.WorkflowAction{ID: "a1", Type: models.ActionWebhookCall, Config: config},
		Context:     data,
	}
}

func TestExecutor_PostsRenderedBody(t *testing.T) {
	t.Parallel()

	var (
		gotPath, gotMethod, gotAuth, gotExecution string
		gotBody                                   map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotExecution = r.Header.Get("X-Execution-Id")

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	executor := webhook.NewExecutor(server.Client(), slog.New(slog.DiscardHandler))

	result, err := executor.Execute(context.Background(), newRequest(&models.WebhookCallConfig{
		URL:     server.URL + "/clients/{{client.id}}",
		Headers: map[string]string{"Authorization": "Bearer {{secrets.token}}"},
		Body:    `{"name":"{{client.name}}"}`,
	}, map[string]any{
		"client":  map[string]any{"id": "c-9", "name": "Ana"},
		"secrets": map[string]any{"token": "abc"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "/clients/c-9", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "exec-1", gotExecution)
	assert.Equal(t, map[string]any{"name": "Ana"}, gotBody)

	out := result.(map[string]any)
	assert.Equal(t, http.StatusCreated, out["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, out["body"])
}

func TestExecutor_EscapesValuesInJSONBody(t *testing.T) {
	t.Parallel()

	bodies := make(chan string, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies <- string(raw)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	executor := webhook.NewExecutor(server.Client(), slog.New(slog.DiscardHandler))
	data := map[string]any{"client": map[string]any{"name": "Ana \"Nana\" Souza\nVIP"}}

	// value configs are accepted as well as pointers
	_, err := executor.Execute(context.Background(), newRequest(models.WebhookCallConfig{
		URL:  server.URL,
		Body: `{"name":"{{client.name}}"}`,
	}, data))
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(<-bodies), &decoded))
	assert.Equal(t, "Ana \"Nana\" Souza\nVIP", decoded["name"])

	_, err = executor.Execute(context.Background(), newRequest(&models.WebhookCallConfig{
		URL:     server.URL,
		Headers: map[string]string{"content-type": "text/plain"},
		Body:    "name={{client.name}}",
	}, data))
	require.NoError(t, err)
	assert.Equal(t, "name=Ana \"Nana\" Souza\nVIP", <-bodies)
}

func TestExecutor_DefaultBodyCarriesContext(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer server.Close()

	executor := webhook.NewExecutor(server.Client(), slog.New(slog.DiscardHandler))

	result, err := executor.Execute(context.Background(), newRequest(&models.WebhookCallConfig{
		URL: server.URL, Method: "PUT",
	}, map[string]any{"status": "DONE"}))
	require.NoError(t, err)

	assert.Equal(t, "wf-1", gotBody["workflow_id"])
	assert.Equal(t, map[string]any{"status": "DONE"}, gotBody["context"])
	assert.Equal(t, "accepted", result.(map[string]any)["body"])
}

func TestExecutor_ErrorStatusFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	executor := webhook.NewExecutor(server.Client(), slog.New(slog.DiscardHandler))

	_, err := executor.Execute(context.Background(), newRequest(&models.WebhookCallConfig{
		URL: server.URL, Method: "GET",
	}, nil))
	require.ErrorIs(t, err, webhook.ErrUnexpectedStatus)
}

func TestExecutor_RejectsOtherConfigs(t *testing.T) {
	t.Parallel()

	executor := webhook.NewExecutor(nil, slog.New(slog.DiscardHandler))

	_, err := executor.Execute(context.Background(), newRequest(&models.AddClientTagConfig{Tag: "vip"}, nil))
	require.ErrorIs(t, err, webhook.ErrInvalidConfig)
}

func TestExecutor_HonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	executor := webhook.NewExecutor(server.Client(), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, newRequest(&models.WebhookCallConfig{URL: server.URL}, nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
