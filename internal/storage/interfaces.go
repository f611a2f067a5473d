package storage

import (
	"context"

	"exchange-order-worker/internal/domain"
)

// StatusFields carries optional columns written together with a status change.
// Nil fields are left untouched.
type StatusFields struct {
	ExternalOrderID *string
	TransactionHash *string
}

// OrderStore provides access to orders storage.
// The store is the single source of truth for order status.
type OrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, o *domain.Order) error

	// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// ConditionalUpdateStatus sets status to next only if the current status equals expected.
	// Returns the number of rows affected (0 or 1). A zero count is not an error.
	ConditionalUpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, fields *StatusFields) (int64, error)

	// UpdateStatus sets status unconditionally. Returns ErrNotFound if the order does not exist.
	UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, fields *StatusFields) error
}

// DeadLetterSink persists dead-letter records. Write-only from the worker's point of view.
type DeadLetterSink interface {
	// Write stores rec under key. Keys are unique per failure.
	Write(ctx context.Context, key string, rec *domain.DeadLetter) error
}
