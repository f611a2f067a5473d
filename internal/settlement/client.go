// Package settlement is the client side of the external settlement service.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
)

// SubmitResult is the settlement service response to an accepted order.
type SubmitResult struct {
	OrderID         string `json:"order_id"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// Client submits signed quotes for settlement. The quote is the enqueued
// payload and is sent as is.
// Any returned error is a failed submission; callers do not distinguish causes.
type Client interface {
	SubmitOrder(ctx context.Context, quote json.RawMessage) (*SubmitResult, error)
}

// APIError is a non-2xx response from the settlement service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("settlement API error %d: %s", e.StatusCode, e.Body)
}

// TransportError is a failure to reach the settlement service or read its reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("settlement %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
