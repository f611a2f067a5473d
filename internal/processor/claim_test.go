package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
	"exchange-order-worker/internal/storage/memory"
)

func TestClaim_Exclusive(t *testing.T) {
	store := memory.NewOrderStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &domain.Order{ID: "O1"}))

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := Claim(ctx, store, "O1")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	got, err := store.GetByID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, got.Status)
}

func TestClaim_NonPendingIsNotAnError(t *testing.T) {
	store := memory.NewOrderStore()
	ctx := context.Background()

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusSubmitted,
		domain.OrderStatusFailed,
	} {
		id := "order-" + status.String()
		require.NoError(t, store.Insert(ctx, &domain.Order{ID: id, Status: status}))

		ok, err := Claim(ctx, store, id)
		require.NoError(t, err)
		assert.False(t, ok, status)
	}
}

// erroringStore fails conditional updates while failClaims > 0.
type erroringStore struct {
	storage.OrderStore
	failClaims atomic.Int32
	failUpdate bool
}

var errStoreDown = errors.New("store unavailable")

func (s *erroringStore) ConditionalUpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, fields *storage.StatusFields) (int64, error) {
	if s.failClaims.Add(-1) >= 0 {
		return 0, errStoreDown
	}
	return s.OrderStore.ConditionalUpdateStatus(ctx, orderID, expected, next, fields)
}

func (s *erroringStore) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, fields *storage.StatusFields) error {
	if s.failUpdate {
		return errStoreDown
	}
	return s.OrderStore.UpdateStatus(ctx, orderID, next, fields)
}

func TestClaim_StoreError(t *testing.T) {
	store := &erroringStore{OrderStore: memory.NewOrderStore()}
	store.failClaims.Store(1)

	ok, err := Claim(context.Background(), store, "O1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errStoreDown)
}
