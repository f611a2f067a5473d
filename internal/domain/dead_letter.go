package domain

import (
	"fmt"
	"time"
)

// DeadLetter records an order that exhausted its retries.
// Written once, never mutated.
type DeadLetter struct {
	OrderID    string    `json:"orderId"`
	OrderData  Order     `json:"orderData"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failedAt"`
	RetryCount int       `json:"retryCount"`
}

// DeadLetterKey builds the composite key failed-<orderId>-<epochMillis>.
func DeadLetterKey(orderID string, failedAt time.Time) string {
	return fmt.Sprintf("failed-%s-%d", orderID, failedAt.UnixMilli())
}

// Key returns the dead-letter key for this record.
func (d *DeadLetter) Key() string {
	return DeadLetterKey(d.OrderID, d.FailedAt)
}
