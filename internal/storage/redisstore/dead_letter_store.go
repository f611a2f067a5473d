package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// DefaultFailedOrdersKey is the hash holding dead-letter records.
const DefaultFailedOrdersKey = "orders:failed"

// DeadLetterStore implements storage.DeadLetterSink as fields of a single Redis hash.
type DeadLetterStore struct {
	client  redis.Cmdable
	hashKey string
}

// NewDeadLetterStore creates a new DeadLetterStore writing into hashKey.
func NewDeadLetterStore(client redis.Cmdable, hashKey string) *DeadLetterStore {
	if hashKey == "" {
		hashKey = DefaultFailedOrdersKey
	}
	return &DeadLetterStore{client: client, hashKey: hashKey}
}

// Compile-time interface check.
var _ storage.DeadLetterSink = (*DeadLetterStore)(nil)

// Write stores rec as JSON under field key. Returns ErrDuplicateKey if the field exists.
func (s *DeadLetterStore) Write(ctx context.Context, key string, rec *domain.DeadLetter) error {
	if key == "" || rec == nil {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	ok, err := s.client.HSetNX(ctx, s.hashKey, key, data).Result()
	if err != nil {
		return fmt.Errorf("hsetnx %s: %w", s.hashKey, err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get reads the record stored under key. Returns ErrNotFound if absent.
func (s *DeadLetterStore) Get(ctx context.Context, key string) (*domain.DeadLetter, error) {
	data, err := s.client.HGet(ctx, s.hashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", s.hashKey, err)
	}

	var rec domain.DeadLetter
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return &rec, nil
}

// Keys lists all dead-letter keys in the hash.
func (s *DeadLetterStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hkeys %s: %w", s.hashKey, err)
	}
	return keys, nil
}
