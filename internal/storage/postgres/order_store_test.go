package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

func testOrder(id string) *domain.Order {
	return &domain.Order{
		ID: id,
		Quote: json.RawMessage(`{"type":"BUY","token":"ETH","pair_token":"USDC","pair_token_amount":"1000.50",` +
			`"blockchain":"BASE","user_address":"0x1111111111111111111111111111111111111111","slippage_bips":50}`),
		Status: domain.OrderStatusPending,
	}
}

func TestOrderStore_InsertAndGetByID(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)
	ctx := context.Background()

	order := testOrder("order-001")
	require.NoError(t, store.Insert(ctx, order))

	retrieved, err := store.GetByID(ctx, "order-001")
	require.NoError(t, err)

	assert.Equal(t, order.ID, retrieved.ID)
	assert.Equal(t, domain.OrderStatusPending, retrieved.Status)
	assert.Equal(t, string(order.Quote), string(retrieved.Quote))
	quote, err := retrieved.QuoteView()
	require.NoError(t, err)
	assert.Equal(t, domain.TradeTypeBuy, quote.Type)
	assert.Equal(t, domain.Amount("1000.50"), quote.PairTokenAmount)
	assert.Equal(t, 50, quote.SlippageBips)
	assert.Nil(t, retrieved.ExternalOrderID)
	assert.NotZero(t, retrieved.CreatedAt)
	assert.NotZero(t, retrieved.UpdatedAt)
}

func TestOrderStore_InsertDuplicate(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testOrder("order-dup")))
	err := store.Insert(ctx, testOrder("order-dup"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestOrderStore_GetByIDNotFound(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrderStore_ConditionalUpdateStatus(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testOrder("order-claim")))

	n, err := store.ConditionalUpdateStatus(ctx, "order-claim", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.ConditionalUpdateStatus(ctx, "order-claim", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.ConditionalUpdateStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOrderStore_ConcurrentClaim(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testOrder("order-race")))

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.ConditionalUpdateStatus(ctx, "order-race", domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
			assert.NoError(t, err)
			wins.Add(n)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}

func TestOrderStore_UpdateStatusWithFields(t *testing.T) {
	pool := setupTestDB(t)

	store := NewOrderStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testOrder("order-submit")))

	err := store.UpdateStatus(ctx, "order-submit", domain.OrderStatusSubmitted, &storage.StatusFields{
		ExternalOrderID: ptr("ext-42"),
		TransactionHash: ptr("0xdeadbeef"),
	})
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "order-submit")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, retrieved.Status)
	require.NotNil(t, retrieved.ExternalOrderID)
	assert.Equal(t, "ext-42", *retrieved.ExternalOrderID)
	require.NotNil(t, retrieved.TransactionHash)
	assert.Equal(t, "0xdeadbeef", *retrieved.TransactionHash)

	err = store.UpdateStatus(ctx, "missing", domain.OrderStatusFailed, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
