package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
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

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	})
	return client
}

func TestDeadLetterStore_WriteAndGet(t *testing.T) {
	client := setupRedis(t)
	store := NewDeadLetterStore(client, "")
	ctx := context.Background()

	rec := &domain.DeadLetter{
		OrderID:    "O2",
		OrderData:  domain.Order{ID: "O2", Status: domain.OrderStatusPending},
		Error:      "settlement timeout",
		FailedAt:   time.UnixMilli(1700000000123).UTC(),
		RetryCount: 3,
	}
	require.NoError(t, store.Write(ctx, rec.Key(), rec))

	got, err := store.Get(ctx, "failed-O2-1700000000123")
	require.NoError(t, err)
	assert.Equal(t, "O2", got.OrderID)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, "settlement timeout", got.Error)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"failed-O2-1700000000123"}, keys)

	// stored in the orders:failed hash
	n, err := client.HLen(ctx, DefaultFailedOrdersKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeadLetterStore_DuplicateAndMissing(t *testing.T) {
	client := setupRedis(t)
	store := NewDeadLetterStore(client, "test:failed")
	ctx := context.Background()

	rec := &domain.DeadLetter{OrderID: "O3", FailedAt: time.UnixMilli(1)}
	require.NoError(t, store.Write(ctx, rec.Key(), rec))
	assert.ErrorIs(t, store.Write(ctx, rec.Key(), rec), storage.ErrDuplicateKey)

	_, err := store.Get(ctx, "failed-none-0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
