package domain

import (
	"encoding/json"
	"time"
)

// Order is a single exchange order tracked through its status lifecycle.
// Corresponds to the orders table.
type Order struct {
	ID string `json:"id"`
	// Quote is the payload as enqueued, signature included. It is forwarded
	// to settlement byte for byte.
	Quote           json.RawMessage `json:"quote,omitempty"`
	Status          OrderStatus     `json:"status"`
	ExternalOrderID *string         `json:"externalOrderId,omitempty"` // set on SUBMITTED
	TransactionHash *string         `json:"transactionHash,omitempty"` // optional, set on SUBMITTED
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// QuoteView returns the typed view of the quote.
func (o *Order) QuoteView() (QuoteRequest, error) {
	return ParseQuote(o.Quote)
}

// ProcessingResult is the structured outcome of processing one order.
// No failure crosses the processor boundary as a panic or bare error.
type ProcessingResult struct {
	Success         bool
	AlreadyHandled  bool // claim lost: another attempt owns or completed the order
	Interrupted     bool // context cancelled before a terminal state was reached
	ExternalOrderID string
	TransactionHash string
	Attempts        int
	Error           string
}
