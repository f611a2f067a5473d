package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// orderRow is the gorm model for the orders table.
type orderRow struct {
	ID              string    `gorm:"primaryKey;size:255"`
	Quote           string    `gorm:"not null"`
	Status          string    `gorm:"size:16;not null;index"`
	ExternalOrderID *string   `gorm:"size:255"`
	TransactionHash *string   `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (orderRow) TableName() string { return "orders" }

// OrderStore implements storage.OrderStore on SQLite through gorm.
// Intended for single-node deployments and local development.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if id exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	quote := string(o.Quote)
	if quote == "" {
		quote = "{}"
	}

	status := o.Status
	if status == "" {
		status = domain.OrderStatusPending
	}

	row := &orderRow{
		ID:              o.ID,
		Quote:           quote,
		Status:          string(status),
		ExternalOrderID: o.ExternalOrderID,
		TransactionHash: o.TransactionHash,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&orderRow{}).Where("id = ?", o.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
		return tx.Create(row).Error
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var row orderRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return row.toDomain()
}

// ConditionalUpdateStatus sets status to next only if the current status equals expected.
func (s *OrderStore) ConditionalUpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, fields *storage.StatusFields) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id = ? AND status = ?", orderID, string(expected)).
		Updates(updateColumns(next, fields))
	if res.Error != nil {
		return 0, fmt.Errorf("conditional update order status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateStatus sets status unconditionally. Returns ErrNotFound if the order does not exist.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, fields *storage.StatusFields) error {
	res := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id = ?", orderID).
		Updates(updateColumns(next, fields))
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func updateColumns(next domain.OrderStatus, fields *storage.StatusFields) map[string]any {
	cols := map[string]any{
		"status":     string(next),
		"updated_at": time.Now(),
	}
	if fields != nil {
		if fields.ExternalOrderID != nil {
			cols["external_order_id"] = *fields.ExternalOrderID
		}
		if fields.TransactionHash != nil {
			cols["transaction_hash"] = *fields.TransactionHash
		}
	}
	return cols
}

func (r *orderRow) toDomain() (*domain.Order, error) {
	o := &domain.Order{
		ID:              r.ID,
		Status:          domain.OrderStatus(r.Status),
		ExternalOrderID: r.ExternalOrderID,
		TransactionHash: r.TransactionHash,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Quote != "" {
		o.Quote = json.RawMessage(r.Quote)
	}
	return o, nil
}
