package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if id exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	quote := []byte(o.Quote)
	if len(quote) == 0 {
		quote = []byte("{}")
	}

	status := o.Status
	if status == "" {
		status = domain.OrderStatusPending
	}

	query := `
		INSERT INTO orders (id, quote, status, external_order_id, transaction_hash)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		o.ID,
		quote,
		string(status),
		o.ExternalOrderID,
		o.TransactionHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `
		SELECT id, quote, status, external_order_id, transaction_hash, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// ConditionalUpdateStatus sets status to next only if the current status equals expected.
// The WHERE clause makes the check-and-set a single atomic statement.
func (s *OrderStore) ConditionalUpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, fields *storage.StatusFields) (int64, error) {
	ext, hash := splitFields(fields)

	query := `
		UPDATE orders
		SET status = $3,
		    external_order_id = COALESCE($4, external_order_id),
		    transaction_hash = COALESCE($5, transaction_hash),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := s.pool.Exec(ctx, query, orderID, string(expected), string(next), ext, hash)
	if err != nil {
		return 0, fmt.Errorf("conditional update order status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateStatus sets status unconditionally. Returns ErrNotFound if the order does not exist.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, fields *storage.StatusFields) error {
	ext, hash := splitFields(fields)

	query := `
		UPDATE orders
		SET status = $2,
		    external_order_id = COALESCE($3, external_order_id),
		    transaction_hash = COALESCE($4, transaction_hash),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, orderID, string(next), ext, hash)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func splitFields(fields *storage.StatusFields) (*string, *string) {
	if fields == nil {
		return nil, nil
	}
	return fields.ExternalOrderID, fields.TransactionHash
}

// scanOrder scans a single row into an Order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var quote []byte
	var statusStr string

	err := row.Scan(
		&o.ID,
		&quote,
		&statusStr,
		&o.ExternalOrderID,
		&o.TransactionHash,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Quote = json.RawMessage(quote)
	o.Status = domain.OrderStatus(statusStr)
	return &o, nil
}
