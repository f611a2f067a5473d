package domain

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusSubmitted  OrderStatus = "SUBMITTED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

// String returns the string representation of OrderStatus.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusSubmitted, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSubmitted || s == OrderStatusFailed
}

// CanTransitionTo checks the PENDING -> PROCESSING -> {SUBMITTED | FAILED} order.
// PENDING -> FAILED is allowed for orders that were never claimed before retries ran out.
// PROCESSING -> PENDING is an external reset and is not performed by the worker.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusFailed
	case OrderStatusProcessing:
		return next == OrderStatusSubmitted || next == OrderStatusFailed || next == OrderStatusPending
	default:
		return false
	}
}
