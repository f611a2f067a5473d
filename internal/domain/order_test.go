package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOrder_UnmarshalQuote(t *testing.T) {
	raw := `{
		"id": "O1",
		"status": "PENDING",
		"quote": {
			"type": "BUY",
			"token": "ETH",
			"pair_token": "USDC",
			"pair_token_amount": "1000",
			"blockchain": "BASE",
			"user_address": "0x1111111111111111111111111111111111111111",
			"slippage_bips": 50
		}
	}`

	var o Order
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if o.ID != "O1" || o.Status != OrderStatusPending {
		t.Errorf("unexpected order header: %+v", o)
	}

	q, err := o.QuoteView()
	if err != nil {
		t.Fatalf("QuoteView: %v", err)
	}
	if q.Type != TradeTypeBuy || !q.Type.IsValid() {
		t.Errorf("expected BUY, got %q", q.Type)
	}
	if amount, ok := q.Amount(); !ok || amount.String() != "1000" {
		t.Errorf("expected amount 1000, got %s (ok=%v)", amount, ok)
	}
	if q.SlippageBips != 50 {
		t.Errorf("expected slippage 50, got %d", q.SlippageBips)
	}
	if q.Signature != "" {
		t.Errorf("expected empty signature, got %q", q.Signature)
	}
}

func TestOrder_QuoteKeptVerbatim(t *testing.T) {
	quote := `{"type":"SELL","pair_token_amount":"1000.50","token_amount":"7","venue_hint":{"x":1},"signature":"0xsig"}`
	raw := `{"id":"O2","status":"PENDING","quote":` + quote + `}`

	var o Order
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(o.Quote) != quote {
		t.Errorf("quote changed:\n got %s\nwant %s", o.Quote, quote)
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    Amount
		wantDec string
		wantOK  bool
	}{
		{"string", `"1000.50"`, "1000.50", "1000.5", true},
		{"number", `42.10`, "42.10", "42.1", true},
		{"empty", `""`, "", "0", false},
		{"null", `null`, "", "0", false},
		{"text", `"lots"`, "lots", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			if err := json.Unmarshal([]byte(tt.json), &a); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if a != tt.want {
				t.Errorf("Amount = %q, want %q", a, tt.want)
			}
			d, ok := a.Decimal()
			if ok != tt.wantOK || (ok && d.String() != tt.wantDec) {
				t.Errorf("Decimal() = %s, %v; want %s, %v", d, ok, tt.wantDec, tt.wantOK)
			}
		})
	}
}

func TestQuoteRequest_AmountFallsBackToTokenAmount(t *testing.T) {
	q, err := ParseQuote(json.RawMessage(`{"type":"BUY","pair_token_amount":"","token_amount":"7"}`))
	if err != nil {
		t.Fatalf("ParseQuote: %v", err)
	}
	if d, ok := q.Amount(); !ok || d.String() != "7" {
		t.Errorf("Amount() = %s, %v; want 7, true", d, ok)
	}
}

func TestParseQuote_Empty(t *testing.T) {
	q, err := ParseQuote(nil)
	if err != nil || q.Type != "" {
		t.Errorf("ParseQuote(nil) = %+v, %v", q, err)
	}
}

func TestNewQuotePayload(t *testing.T) {
	raw, err := NewQuotePayload(QuoteRequest{Type: TradeTypeBuy, Token: "ETH", PairTokenAmount: "1000"})
	if err != nil {
		t.Fatalf("NewQuotePayload: %v", err)
	}
	q, err := ParseQuote(raw)
	if err != nil {
		t.Fatalf("ParseQuote: %v", err)
	}
	if q.Token != "ETH" || q.PairTokenAmount != "1000" {
		t.Errorf("round trip = %+v", q)
	}
}

func TestDeadLetterKey(t *testing.T) {
	failedAt := time.UnixMilli(1700000000123)

	if got := DeadLetterKey("O2", failedAt); got != "failed-O2-1700000000123" {
		t.Errorf("unexpected key %q", got)
	}

	d := &DeadLetter{OrderID: "O2", FailedAt: failedAt}
	if d.Key() != "failed-O2-1700000000123" {
		t.Errorf("unexpected record key %q", d.Key())
	}
}
