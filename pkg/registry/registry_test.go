package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(value string) protocol.ActionExecutor {
	return protocol.ActionExecutorFunc(func(context.Context, protocol.ActionRequest) (any, error) {
		return value, nil
	})
}

func request(actionType models.ActionType) protocol.ActionRequest {
	return protocol.ActionRequest{Action: models.WorkflowAction{ID: "a1", Type: actionType}}
}

func TestRegistry_DispatchesByType(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.Register(constant("email"), models.ActionSendEmail)
	registry.Register(constant("messaging"), models.ActionSendSMS, models.ActionSendWhatsApp)

	result, err := registry.Execute(context.Background(), request(models.ActionSendEmail))
	require.NoError(t, err)
	assert.Equal(t, "email", result)

	result, err = registry.Execute(context.Background(), request(models.ActionSendWhatsApp))
	require.NoError(t, err)
	assert.Equal(t, "messaging", result)

	assert.Equal(t,
		[]models.ActionType{models.ActionSendEmail, models.ActionSendSMS, models.ActionSendWhatsApp},
		registry.Registered())
}

func TestRegistry_UnknownTypeFails(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, err := registry.Execute(context.Background(), request(models.ActionCreateTask))
	require.ErrorIs(t, err, ErrActionNotRegistered)
}

func TestRegistry_Fallback(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.Register(constant("webhook"), models.ActionWebhookCall)
	registry.SetFallback(constant("dry-run"))

	result, err := registry.Execute(context.Background(), request(models.ActionCreateTask))
	require.NoError(t, err)
	assert.Equal(t, "dry-run", result)

	result, err = registry.Execute(context.Background(), request(models.ActionWebhookCall))
	require.NoError(t, err)
	assert.Equal(t, "webhook", result)
}

func TestRegistry_HealthCheck(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, healthy := registry.HealthCheck()
	assert.False(t, healthy)

	registry.SetFallback(constant("dry-run"))

	message, healthy := registry.HealthCheck()
	assert.True(t, healthy)
	assert.Equal(t, "0 action executors registered", message)
}
