package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// DeadLetterStore implements storage.DeadLetterSink using ClickHouse.
// Rows are append-only and queryable for offline analysis.
type DeadLetterStore struct {
	conn *Conn
}

// NewDeadLetterStore creates a new DeadLetterStore.
func NewDeadLetterStore(conn *Conn) *DeadLetterStore {
	return &DeadLetterStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DeadLetterSink = (*DeadLetterStore)(nil)

// Write inserts one record. Returns ErrDuplicateKey if key was already written.
// MergeTree does not enforce uniqueness, so the check is explicit.
func (s *DeadLetterStore) Write(ctx context.Context, key string, rec *domain.DeadLetter) error {
	if key == "" || rec == nil {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	orderData, err := json.Marshal(rec.OrderData)
	if err != nil {
		return fmt.Errorf("marshal order data: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO failed_orders (
			key, order_id, order_data, error, failed_at, retry_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		key, rec.OrderID, string(orderData), rec.Error,
		rec.FailedAt.UTC(), uint32(rec.RetryCount),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByOrderID returns all dead letters for an order, oldest first.
func (s *DeadLetterStore) GetByOrderID(ctx context.Context, orderID string) ([]*domain.DeadLetter, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT order_id, order_data, error, failed_at, retry_count
		FROM failed_orders
		WHERE order_id = ?
		ORDER BY failed_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var result []*domain.DeadLetter
	for rows.Next() {
		var (
			rec        domain.DeadLetter
			orderData  string
			failedAt   time.Time
			retryCount uint32
		)
		if err := rows.Scan(&rec.OrderID, &orderData, &rec.Error, &failedAt, &retryCount); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		if err := json.Unmarshal([]byte(orderData), &rec.OrderData); err != nil {
			return nil, fmt.Errorf("unmarshal order data: %w", err)
		}
		rec.FailedAt = failedAt
		rec.RetryCount = int(retryCount)
		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letter rows: %w", err)
	}
	return result, nil
}

func (s *DeadLetterStore) exists(ctx context.Context, key string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM failed_orders WHERE key = ?`, key)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
