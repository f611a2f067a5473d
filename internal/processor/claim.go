package processor

import (
	"context"
	"fmt"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// Claim moves orderID from PENDING to PROCESSING in one conditional update.
// It returns false, nil when another attempt already owns or finished the
// order; that is not an error.
func Claim(ctx context.Context, store storage.OrderStore, orderID string) (bool, error) {
	n, err := store.ConditionalUpdateStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusProcessing, nil)
	if err != nil {
		return false, fmt.Errorf("claim order %s: %w", orderID, err)
	}
	return n == 1, nil
}
