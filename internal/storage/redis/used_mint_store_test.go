package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-round-selector/internal/storage"
)

// setupTestRedis starts a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestUsedMintStore_Window(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewUsedMintStore(client, WithKeyPrefix("test"))
	ctx := context.Background()
	assert.Equal(t, "test:used_mints", store.Key())

	for _, m := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Record(ctx, m))
	}

	all, err := store.Excluded(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	recent, err := store.Excluded(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"c": {}, "d": {}}, recent)
}

func TestUsedMintStore_SharedAcrossInstances(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	writer := NewUsedMintStore(client)
	reader := NewUsedMintStore(client)

	require.NoError(t, writer.Record(ctx, "mint"))

	ex, err := reader.Excluded(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, ex, "mint")
}

func TestUsedMintStore_MaxLen(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewUsedMintStore(client, WithKeyPrefix("trim"), WithMaxLen(2))

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, store.Record(ctx, m))
	}

	n, err := client.LLen(ctx, store.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUsedMintStore_EmptyMint(t *testing.T) {
	store := NewUsedMintStore(nil)
	assert.ErrorIs(t, store.Record(context.Background(), ""), storage.ErrInvalidInput)
}
