package domain

import "testing"

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusSubmitted, false},
		{OrderStatusProcessing, OrderStatusSubmitted, true},
		{OrderStatusProcessing, OrderStatusFailed, true},
		{OrderStatusProcessing, OrderStatusPending, true},
		{OrderStatusSubmitted, OrderStatusFailed, false},
		{OrderStatusFailed, OrderStatusSubmitted, false},
		{OrderStatusSubmitted, OrderStatusProcessing, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	if OrderStatusPending.IsTerminal() || OrderStatusProcessing.IsTerminal() {
		t.Error("PENDING and PROCESSING must not be terminal")
	}
	if !OrderStatusSubmitted.IsTerminal() || !OrderStatusFailed.IsTerminal() {
		t.Error("SUBMITTED and FAILED must be terminal")
	}
}

func TestOrderStatus_IsValid(t *testing.T) {
	if OrderStatus("DONE").IsValid() {
		t.Error("unknown status should be invalid")
	}
	if !OrderStatusSubmitted.IsValid() {
		t.Error("SUBMITTED should be valid")
	}
}
