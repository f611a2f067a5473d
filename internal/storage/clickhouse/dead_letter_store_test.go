package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

func TestDeadLetterStore_WriteAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDeadLetterStore(conn)
	ctx := context.Background()

	rec := &domain.DeadLetter{
		OrderID:    "O2",
		OrderData:  domain.Order{ID: "O2", Status: domain.OrderStatusPending},
		Error:      "settlement timeout",
		FailedAt:   time.UnixMilli(1700000000123).UTC(),
		RetryCount: 3,
	}

	require.NoError(t, store.Write(ctx, rec.Key(), rec))

	got, err := store.GetByOrderID(ctx, "O2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "settlement timeout", got[0].Error)
	assert.Equal(t, 3, got[0].RetryCount)
	assert.Equal(t, "O2", got[0].OrderData.ID)
	assert.Equal(t, rec.FailedAt.UnixMilli(), got[0].FailedAt.UnixMilli())
}

func TestDeadLetterStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDeadLetterStore(conn)
	ctx := context.Background()

	rec := &domain.DeadLetter{OrderID: "O3", FailedAt: time.UnixMilli(1700000000000)}
	require.NoError(t, store.Write(ctx, rec.Key(), rec))

	err := store.Write(ctx, rec.Key(), rec)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
