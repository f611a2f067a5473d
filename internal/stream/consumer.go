package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/observability"
)

// Handler processes one decoded order. Implementations report every outcome
// through the returned result and never panic on expected failures.
type Handler interface {
	ProcessOrder(ctx context.Context, orderID string, order *domain.Order, traceID string) domain.ProcessingResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, orderID string, order *domain.Order, traceID string) domain.ProcessingResult

// ProcessOrder calls f.
func (f HandlerFunc) ProcessOrder(ctx context.Context, orderID string, order *domain.Order, traceID string) domain.ProcessingResult {
	return f(ctx, orderID, order, traceID)
}

// Stream entry results used for metrics.
const (
	resultProcessed = "processed"
	resultMalformed = "malformed"
	resultPanicked  = "panicked"
)

// ackTimeout bounds an acknowledgment issued after the loop context was cancelled.
const ackTimeout = 3 * time.Second

// NewConsumerName returns worker-<pid>-<unixMillis>, unique per running process.
func NewConsumerName() string {
	return fmt.Sprintf("worker-%d-%d", os.Getpid(), time.Now().UnixMilli())
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Processed      uint64 `json:"processed"`
	Succeeded      uint64 `json:"succeeded"`
	Failed         uint64 `json:"failed"`
	AlreadyHandled uint64 `json:"already_handled"`
	Malformed      uint64 `json:"malformed"`
	ReadErrors     uint64 `json:"read_errors"`
	AckErrors      uint64 `json:"ack_errors"`
}

// Consumer runs the consumer-group read loop for one process.
// At most one order is in flight at a time.
type Consumer struct {
	log           Log
	handler       Handler
	stream        string
	group         string
	name          string
	blockTimeout  time.Duration
	errorBackoff  time.Duration
	statsInterval time.Duration
	statsAttrs    func() []any
	logger        *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	processed      atomic.Uint64
	succeeded      atomic.Uint64
	failed         atomic.Uint64
	alreadyHandled atomic.Uint64
	malformed      atomic.Uint64
	readErrors     atomic.Uint64
	ackErrors      atomic.Uint64
}

// ConsumerOptions contains configuration for creating a Consumer.
type ConsumerOptions struct {
	Log           Log
	Handler       Handler
	Stream        string
	Group         string
	Consumer      string        // Default: NewConsumerName()
	BlockTimeout  time.Duration // Default: 1s
	ErrorBackoff  time.Duration // Default: 5s - pause after a failed read
	StatsInterval time.Duration // Default: 60s - periodic stats log line
	StatsAttrs    func() []any  // optional extra attributes for the stats line
	Logger        *slog.Logger
}

// NewConsumer creates a new stream consumer.
func NewConsumer(opts ConsumerOptions) *Consumer {
	name := opts.Consumer
	if name == "" {
		name = NewConsumerName()
	}

	blockTimeout := opts.BlockTimeout
	if blockTimeout == 0 {
		blockTimeout = 1 * time.Second
	}

	errorBackoff := opts.ErrorBackoff
	if errorBackoff == 0 {
		errorBackoff = 5 * time.Second
	}

	statsInterval := opts.StatsInterval
	if statsInterval == 0 {
		statsInterval = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		log:           opts.Log,
		handler:       opts.Handler,
		stream:        opts.Stream,
		group:         opts.Group,
		name:          name,
		blockTimeout:  blockTimeout,
		errorBackoff:  errorBackoff,
		statsInterval: statsInterval,
		statsAttrs:    opts.StatsAttrs,
		logger:        logger.With("consumer", name, "stream", opts.Stream, "group", opts.Group),
	}
}

// Name returns the consumer name used in the group.
func (c *Consumer) Name() string {
	return c.name
}

// Running reports whether the loop is active.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:      c.processed.Load(),
		Succeeded:      c.succeeded.Load(),
		Failed:         c.failed.Load(),
		AlreadyHandled: c.alreadyHandled.Load(),
		Malformed:      c.malformed.Load(),
		ReadErrors:     c.readErrors.Load(),
		AckErrors:      c.ackErrors.Load(),
	}
}

// EnsureGroup creates the consumer group anchored at new entries only.
// An existing group is treated as success.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if err := c.log.CreateGroup(ctx, c.stream, c.group, StartNewOnly, true); err != nil {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Start creates the group and runs the loop in a background goroutine.
// A failed group creation is logged and the loop starts anyway; it recreates
// the group once a read reports ErrNoGroup.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return errors.New("consumer already started")
	}

	if err := c.EnsureGroup(ctx); err != nil {
		c.logger.Error("create consumer group failed, will retry from the read loop",
			"operation", "create_group",
			"error", err,
		)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)

	go func() {
		defer close(c.done)
		defer cancel()
		c.loop(loopCtx)
	}()
	go c.reportStats(loopCtx)

	c.logger.Info("consumer started", "operation", "start")
	return nil
}

// Run starts the consumer and blocks until ctx is done or Stop is called.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-c.done
	return nil
}

// Stop asks the loop to exit after its current iteration and waits up to grace.
// If the loop is still busy when grace elapses its context is cancelled and
// ErrShutdownTimeout is returned.
func (c *Consumer) Stop(grace time.Duration) error {
	c.mu.Lock()
	done, cancel := c.done, c.cancel
	c.mu.Unlock()

	c.running.Store(false)
	if done == nil {
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		c.logger.Info("consumer stopped", "operation", "stop")
		return nil
	case <-timer.C:
	}

	cancel()
	<-done
	c.logger.Warn("consumer forced to stop", "operation", "stop", "grace", grace)
	return ErrShutdownTimeout
}

func (c *Consumer) loop(ctx context.Context) {
	for c.running.Load() && ctx.Err() == nil {
		entries, err := c.log.ReadGroup(ctx, c.group, c.name, c.stream, c.blockTimeout, 1)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.handleReadError(ctx, err)
			continue
		}

		for _, e := range entries {
			c.handleEntry(ctx, e)
		}
	}
	c.running.Store(false)
}

func (c *Consumer) handleReadError(ctx context.Context, err error) {
	c.readErrors.Add(1)
	observability.RecordStreamReadError()
	c.logger.Error("stream read failed", "operation", "read_group", "error", err, "backoff", c.errorBackoff)

	if errors.Is(err, ErrNoGroup) {
		if gerr := c.EnsureGroup(ctx); gerr != nil {
			c.logger.Error("recreate consumer group failed", "operation", "create_group", "error", gerr)
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.errorBackoff):
	}
}

func (c *Consumer) handleEntry(ctx context.Context, e Entry) {
	decoded, err := DecodeEntry(e)
	if err != nil {
		c.malformed.Add(1)
		observability.RecordStreamEntry(resultMalformed)
		c.logger.Error("dropping malformed entry", "operation", "decode", "entry_id", e.ID, "error", err)
		c.ack(ctx, e.ID, "")
		return
	}

	logger := c.logger.With("order_id", decoded.OrderID, "trace_id", decoded.TraceID, "entry_id", e.ID)
	logger.Info("processing order", "operation", "process")

	result, ok := c.dispatch(ctx, decoded, logger)
	c.processed.Add(1)
	if ok {
		observability.RecordStreamEntry(resultProcessed)
		switch {
		case result.AlreadyHandled:
			c.alreadyHandled.Add(1)
		case result.Success:
			c.succeeded.Add(1)
		default:
			c.failed.Add(1)
		}
		logger.Info("order processed",
			"operation", "process",
			"success", result.Success,
			"already_handled", result.AlreadyHandled,
			"interrupted", result.Interrupted,
			"attempts", result.Attempts,
			"error", result.Error,
		)
	} else {
		c.failed.Add(1)
		observability.RecordStreamEntry(resultPanicked)
	}

	// Acknowledged regardless of outcome; redelivery is guarded by the claim.
	c.ack(ctx, e.ID, decoded.OrderID)
}

func (c *Consumer) dispatch(ctx context.Context, d *DecodedEntry, logger *slog.Logger) (result domain.ProcessingResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "operation", "process", "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return c.handler.ProcessOrder(ctx, d.OrderID, d.Order, d.TraceID), true
}

func (c *Consumer) ack(ctx context.Context, entryID, orderID string) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := c.log.Ack(ackCtx, c.stream, c.group, entryID); err != nil {
		c.ackErrors.Add(1)
		observability.RecordStreamAckError()
		c.logger.Error("ack failed", "operation", "ack", "entry_id", entryID, "order_id", orderID, "error", err)
	}
}

func (c *Consumer) reportStats(ctx context.Context) {
	ticker := time.NewTicker(c.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			attrs := []any{
				"operation", "stats",
				"processed", s.Processed,
				"succeeded", s.Succeeded,
				"failed", s.Failed,
				"already_handled", s.AlreadyHandled,
				"malformed", s.Malformed,
				"read_errors", s.ReadErrors,
				"ack_errors", s.AckErrors,
			}
			if c.statsAttrs != nil {
				attrs = append(attrs, c.statsAttrs()...)
			}
			c.logger.Info("consumer stats", attrs...)
		}
	}
}
