package cmd

import (
	"log/slog"
	"testing"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"file:///var/lib/automation":           "file",
		"./data":                               "file",
		"postgres://user@localhost/automation": "postgres",
		"postgresql://localhost/automation":    "postgresql",
		"mongodb://localhost":                  "file",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(t.Context(), slog.Default(), "file://"+t.TempDir())
	require.NoError(t, err)

	assert.IsType(t, &file.Persistence{}, p)
	assert.NoError(t, p.HealthCheck(t.Context()))
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", "automation", slog.Default())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", "automation", slog.Default())
	require.Error(t, err)

	_, err = NewEventBus("carrier-pigeon", "", "automation", slog.Default())
	require.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(slog.Default())

	assert.Equal(t, []models.ActionType{models.ActionWebhookCall}, reg.Registered())

	_, healthy := reg.HealthCheck()
	assert.True(t, healthy)
}
