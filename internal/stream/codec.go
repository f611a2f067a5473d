package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"exchange-order-worker/internal/domain"
)

// Entry field names shared with the intake side.
const (
	FieldOrderID   = "orderId"
	FieldOrderData = "orderData"
	FieldCreatedAt = "createdAt"
	FieldStatus    = "status"
	FieldTraceID   = "traceId"
)

// NewEntryValues encodes an order snapshot as log entry fields.
// A blank traceID is replaced with a fresh uuid.
func NewEntryValues(o *domain.Order, traceID string) (map[string]string, error) {
	if o == nil || o.ID == "" {
		return nil, fmt.Errorf("encode entry: order id is required")
	}

	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}

	if traceID == "" {
		traceID = uuid.NewString()
	}

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	status := o.Status
	if status == "" {
		status = domain.OrderStatusPending
	}

	return map[string]string{
		FieldOrderID:   o.ID,
		FieldOrderData: string(data),
		FieldCreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
		FieldStatus:    string(status),
		FieldTraceID:   traceID,
	}, nil
}

// DecodedEntry is the order carried by one log entry.
type DecodedEntry struct {
	OrderID string
	Order   *domain.Order
	TraceID string
}

// DecodeEntry extracts the order from e. Errors wrap ErrMalformedEntry.
// Business fields of the quote are not validated.
func DecodeEntry(e Entry) (*DecodedEntry, error) {
	orderID := e.Values[FieldOrderID]
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEntry, FieldOrderID)
	}

	raw := e.Values[FieldOrderData]
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEntry, FieldOrderData)
	}

	var o domain.Order
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedEntry, FieldOrderData, err)
	}
	if o.ID == "" {
		o.ID = orderID
	}

	return &DecodedEntry{
		OrderID: orderID,
		Order:   &o,
		TraceID: e.Values[FieldTraceID],
	}, nil
}
