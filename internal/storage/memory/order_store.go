package memory

import (
	"context"
	"sync"
	"time"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
// Conditional updates are atomic under the store mutex.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order // keyed by order id
	now  func() time.Time
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]*domain.Order),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if id exists.
func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.ID]; exists {
		return storage.ErrDuplicateKey
	}

	orderCopy := copyOrder(o)
	if orderCopy.Status == "" {
		orderCopy.Status = domain.OrderStatusPending
	}
	now := s.now()
	if orderCopy.CreatedAt.IsZero() {
		orderCopy.CreatedAt = now
	}
	orderCopy.UpdatedAt = now
	s.data[o.ID] = orderCopy
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOrder(o), nil
}

// ConditionalUpdateStatus sets status to next only if the current status equals expected.
func (s *OrderStore) ConditionalUpdateStatus(_ context.Context, orderID string, expected, next domain.OrderStatus, fields *storage.StatusFields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[orderID]
	if !exists || o.Status != expected {
		return 0, nil
	}

	s.apply(o, next, fields)
	return 1, nil
}

// UpdateStatus sets status unconditionally. Returns ErrNotFound if the order does not exist.
func (s *OrderStore) UpdateStatus(_ context.Context, orderID string, next domain.OrderStatus, fields *storage.StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[orderID]
	if !exists {
		return storage.ErrNotFound
	}

	s.apply(o, next, fields)
	return nil
}

// apply mutates o in place. Caller must hold the write lock.
func (s *OrderStore) apply(o *domain.Order, next domain.OrderStatus, fields *storage.StatusFields) {
	o.Status = next
	o.UpdatedAt = s.now()
	if fields == nil {
		return
	}
	if fields.ExternalOrderID != nil {
		v := *fields.ExternalOrderID
		o.ExternalOrderID = &v
	}
	if fields.TransactionHash != nil {
		v := *fields.TransactionHash
		o.TransactionHash = &v
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.Quote != nil {
		c.Quote = append([]byte(nil), o.Quote...)
	}
	if o.ExternalOrderID != nil {
		v := *o.ExternalOrderID
		c.ExternalOrderID = &v
	}
	if o.TransactionHash != nil {
		v := *o.TransactionHash
		c.TransactionHash = &v
	}
	return &c
}
