package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

func newTestStore(t *testing.T) *OrderStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	return NewOrderStore(db)
}

func TestOrderStore_InsertAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := &domain.Order{
		ID: "O1",
		Quote: json.RawMessage(`{"type":"BUY","token":"ETH","pair_token":"USDC","pair_token_amount":"1000.50","blockchain":"BASE","slippage_bips":50}`),
	}
	require.NoError(t, store.Insert(ctx, order))

	got, err := store.GetByID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, string(order.Quote), string(got.Quote))
	quote, err := got.QuoteView()
	require.NoError(t, err)
	assert.Equal(t, "ETH", quote.Token)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestOrderStore_InsertDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.Order{ID: "dup"}))
	assert.ErrorIs(t, store.Insert(ctx, &domain.Order{ID: "dup"}), storage.ErrDuplicateKey)
}

func TestOrderStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpdateStatus(ctx, "missing", domain.OrderStatusFailed, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrderStore_ClaimAndSubmit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.Order{ID: "O1"}))

	n, err := store.ConditionalUpdateStatus(ctx, "O1", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.ConditionalUpdateStatus(ctx, "O1", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	ext := "ext-1"
	require.NoError(t, store.UpdateStatus(ctx, "O1", domain.OrderStatusSubmitted, &storage.StatusFields{ExternalOrderID: &ext}))

	got, err := store.GetByID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, got.Status)
	require.NotNil(t, got.ExternalOrderID)
	assert.Equal(t, "ext-1", *got.ExternalOrderID)
	assert.Nil(t, got.TransactionHash)
}

func TestOrderStore_ConcurrentClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.Order{ID: "race"}))

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.ConditionalUpdateStatus(ctx, "race", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
			assert.NoError(t, err)
			wins.Add(n)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}
