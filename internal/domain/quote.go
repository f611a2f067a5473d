package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TradeType is the direction of a quote.
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// IsValid checks if the trade type is BUY or SELL.
func (t TradeType) IsValid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// Amount is a quote amount exactly as written by intake. It accepts a JSON
// string, number or null and never rejects the value.
type Amount string

// UnmarshalJSON keeps the literal text of a string or number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*a = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
	default:
		*a = Amount(b)
	}
	return nil
}

// Decimal parses the amount. ok is false for blank or non-numeric text.
func (a Amount) Decimal() (d decimal.Decimal, ok bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(string(a)))
	return d, err == nil
}

// QuoteRequest is a typed view of the quote payload, for logging and
// metrics. The payload submitted for settlement is Order.Quote, untouched.
type QuoteRequest struct {
	Type            TradeType `json:"type"`
	Token           string    `json:"token"`
	PairToken       string    `json:"pair_token"`
	PairTokenAmount Amount    `json:"pair_token_amount,omitempty"`
	TokenAmount     Amount    `json:"token_amount,omitempty"`
	Blockchain      string    `json:"blockchain"`
	UserAddress     string    `json:"user_address"`
	SlippageBips    int       `json:"slippage_bips"`
	Signature       string    `json:"signature,omitempty"`
}

// Amount returns pair_token_amount when it parses, else token_amount.
func (q QuoteRequest) Amount() (decimal.Decimal, bool) {
	if d, ok := q.PairTokenAmount.Decimal(); ok {
		return d, true
	}
	return q.TokenAmount.Decimal()
}

// NewQuotePayload encodes q as a quote payload. Intake and tests use it;
// the worker itself never re-encodes a quote.
func NewQuotePayload(q QuoteRequest) (json.RawMessage, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode quote: %w", err)
	}
	return data, nil
}

// ParseQuote decodes a raw payload into its typed view.
func ParseQuote(raw json.RawMessage) (QuoteRequest, error) {
	var q QuoteRequest
	if len(bytes.TrimSpace(raw)) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, fmt.Errorf("decode quote: %w", err)
	}
	return q, nil
}
