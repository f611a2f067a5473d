// Package deadletter records orders that exhausted their retries.
package deadletter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/observability"
	"exchange-order-worker/internal/storage"
)

// DefaultMaxErrorLen bounds the stored error message, in characters.
const DefaultMaxErrorLen = 500

var errNoSink = errors.New("no dead-letter sink")

// writeTimeout bounds one sink write, independent of the caller's cancellation.
const writeTimeout = 5 * time.Second

// Writer builds dead-letter records and hands them to a sink.
// Writes are best-effort: failures are logged and swallowed.
type Writer struct {
	sink        storage.DeadLetterSink
	maxErrorLen int
	now         func() time.Time
	logger      *slog.Logger
}

// WriterOptions contains configuration for creating a Writer.
type WriterOptions struct {
	Sink        storage.DeadLetterSink
	MaxErrorLen int              // Default: 500
	Now         func() time.Time // Default: time.Now
	Logger      *slog.Logger
}

// NewWriter creates a new dead-letter writer.
func NewWriter(opts WriterOptions) *Writer {
	maxErrorLen := opts.MaxErrorLen
	if maxErrorLen <= 0 {
		maxErrorLen = DefaultMaxErrorLen
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		sink:        opts.Sink,
		maxErrorLen: maxErrorLen,
		now:         now,
		logger:      logger,
	}
}

// Write records order as permanently failed and returns the key used.
// It never returns an error.
func (w *Writer) Write(ctx context.Context, orderID string, order *domain.Order, cause string, retryCount int) string {
	rec := &domain.DeadLetter{
		OrderID:    orderID,
		Error:      Truncate(cause, w.maxErrorLen),
		FailedAt:   w.now(),
		RetryCount: retryCount,
	}
	if order != nil {
		rec.OrderData = *order
	}
	key := rec.Key()

	logger := w.logger.With("order_id", orderID, "dead_letter_key", key)

	if w.sink == nil {
		logger.Error("no dead-letter sink configured, record dropped", "operation", "dead_letter")
		observability.RecordDeadLetter(errNoSink)
		return key
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := w.sink.Write(writeCtx, key, rec)
	observability.RecordDeadLetter(err)
	if err != nil {
		logger.Error("dead-letter write failed", "operation", "dead_letter", "error", err)
		return key
	}

	logger.Warn("order moved to dead letter", "operation", "dead_letter", "retry_count", retryCount, "error", rec.Error)
	return key
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
