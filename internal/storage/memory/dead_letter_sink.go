package memory

import (
	"context"
	"sort"
	"sync"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// DeadLetterSink is an in-memory implementation of storage.DeadLetterSink.
type DeadLetterSink struct {
	mu   sync.RWMutex
	data map[string]*domain.DeadLetter // keyed by failed-<orderId>-<epochMillis>
}

// NewDeadLetterSink creates a new in-memory dead-letter sink.
func NewDeadLetterSink() *DeadLetterSink {
	return &DeadLetterSink{
		data: make(map[string]*domain.DeadLetter),
	}
}

// Compile-time interface check.
var _ storage.DeadLetterSink = (*DeadLetterSink)(nil)

// Write stores rec under key. Returns ErrDuplicateKey if key exists.
func (s *DeadLetterSink) Write(_ context.Context, key string, rec *domain.DeadLetter) error {
	if key == "" || rec == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	recCopy := *rec
	s.data[key] = &recCopy
	return nil
}

// Keys returns all stored keys in lexical order.
func (s *DeadLetterSink) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetByOrderID returns all records for an order, oldest first.
func (s *DeadLetterSink) GetByOrderID(orderID string) []*domain.DeadLetter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DeadLetter
	for _, rec := range s.data {
		if rec.OrderID == orderID {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.Before(result[j].FailedAt)
	})
	return result
}

// Len returns the number of stored records.
func (s *DeadLetterSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
