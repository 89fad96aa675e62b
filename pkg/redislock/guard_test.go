package redislock_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/automation/pkg/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := redislock.NewClient(ctx, "redis://"+endpoint)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestGuard(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	first := redislock.NewGuard(client, time.Minute, logger)
	second := redislock.NewGuard(client, time.Minute, logger)

	ok, err := first.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, ok, "a second process must not run the same workflow")

	ok, err = second.Acquire(ctx, "wf-2")
	require.NoError(t, err)
	assert.True(t, ok)

	// releasing a lock we do not hold leaves the owner's lock in place
	require.NoError(t, second.Release(ctx, "wf-1"))

	ok, err = second.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, "wf-1"))

	ok, err = second.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, "automation:inflight:wf-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
}

func TestGuard_ExtendOutlivesDelay(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	guard := redislock.NewGuard(client, time.Minute, slog.New(slog.DiscardHandler))

	require.ErrorIs(t, guard.Extend(ctx, "wf-1", time.Hour), redislock.ErrLockLost)

	ok, err := guard.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Extend(ctx, "wf-1", 96*time.Hour))

	ttl, err := client.TTL(ctx, "automation:inflight:wf-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 96*time.Hour)

	// another owner took the key after ours expired
	require.NoError(t, client.Set(ctx, "automation:inflight:wf-1", "other", time.Minute).Err())
	require.ErrorIs(t, guard.Extend(ctx, "wf-1", time.Hour), redislock.ErrLockLost)

	ttl, err = client.TTL(ctx, "automation:inflight:wf-1").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := redislock.NewClient(context.Background(), "http://localhost")
	require.Error(t, err)
}
