// Package processor applies each order's settlement side effect at most once,
// under a bounded retry policy guarded by a circuit breaker.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/observability"
	"exchange-order-worker/internal/settlement"
	"exchange-order-worker/internal/storage"
)

// persistTimeout bounds terminal store writes issued after cancellation.
const persistTimeout = 5 * time.Second

// DeadLetterWriter records permanently failed orders. Best-effort.
type DeadLetterWriter interface {
	Write(ctx context.Context, orderID string, order *domain.Order, cause string, retryCount int) string
}

// outcomeKind tags the result of one attempt.
type outcomeKind int

const (
	outcomeSubmitted outcomeKind = iota
	outcomeAlreadyHandled
	outcomeBreakerOpen
	outcomeClaimFailed
	outcomeSettlementFailed
	outcomeInterrupted
)

type attemptOutcome struct {
	kind   outcomeKind
	result *settlement.SubmitResult
	err    error
}

// Processor processes one order at a time. It owns the circuit breaker.
type Processor struct {
	store       storage.OrderStore
	settlement  settlement.Client
	deadLetters DeadLetterWriter
	breaker     *CircuitBreaker
	maxRetries  int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	logger      *slog.Logger
}

// Options contains configuration for creating a Processor.
type Options struct {
	Store       storage.OrderStore
	Settlement  settlement.Client
	DeadLetters DeadLetterWriter
	Breaker     *CircuitBreaker // Default: NewCircuitBreaker with defaults
	MaxRetries  int             // Default: 3
	RetryDelay  time.Duration   // Default: 1s - delay before attempt k+1 is RetryDelay*k
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
	Logger      *slog.Logger
}

// New creates a new order processor.
func New(opts Options) *Processor {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1 * time.Second
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(BreakerOptions{Logger: logger})
	}

	return &Processor{
		store:       opts.Store,
		settlement:  opts.Settlement,
		deadLetters: opts.DeadLetters,
		breaker:     breaker,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		sleep:       sleep,
		now:         now,
		logger:      logger,
	}
}

// Breaker returns the processor's circuit breaker.
func (p *Processor) Breaker() *CircuitBreaker {
	return p.breaker
}

// ProcessOrder claims the order, submits it for settlement with retries and
// records the terminal state. Every failure is reported in the result.
func (p *Processor) ProcessOrder(ctx context.Context, orderID string, order *domain.Order, traceID string) domain.ProcessingResult {
	start := p.now()
	logger := p.logger.With("order_id", orderID, "trace_id", traceID)
	if order != nil {
		if q, err := order.QuoteView(); err == nil {
			logger = logger.With("trade_type", q.Type, "token", q.Token, "blockchain", q.Blockchain)
			if amount, ok := q.Amount(); ok {
				logger = logger.With("amount", amount.String())
			}
		} else {
			logger.Debug("quote not readable for logging", "error", err)
		}
	}

	result := p.process(ctx, orderID, order, logger)

	observability.RecordOrderProcessed(outcomeLabel(result), p.now().Sub(start).Seconds())
	return result
}

func (p *Processor) process(ctx context.Context, orderID string, order *domain.Order, logger *slog.Logger) domain.ProcessingResult {
	if order == nil {
		order = &domain.Order{ID: orderID}
	}

	claimed := false
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if attempt > 1 {
			observability.RecordRetry()
		}

		out := p.attempt(ctx, orderID, order, &claimed, logger)

		switch out.kind {
		case outcomeAlreadyHandled:
			logger.Info("order already claimed, skipping", "operation", "claim", "attempt", attempt)
			return domain.ProcessingResult{Success: true, AlreadyHandled: true, Attempts: attempt}

		case outcomeSubmitted:
			return p.markSubmitted(ctx, orderID, out.result, attempt, logger)

		case outcomeInterrupted:
			return p.interrupted(attempt, claimed, out.err, logger)
		}

		lastErr = out.err
		logger.Warn("order attempt failed",
			"operation", "submit",
			"attempt", attempt,
			"max_retries", p.maxRetries,
			"error", out.err,
		)

		if attempt < p.maxRetries {
			delay := p.retryDelay * time.Duration(attempt)
			if err := p.sleep(ctx, delay); err != nil {
				return p.interrupted(attempt, claimed, err, logger)
			}
		}
	}

	return p.markFailed(ctx, orderID, order, claimed, lastErr, logger)
}

// attempt runs one try: breaker check, claim (once), settlement call.
func (p *Processor) attempt(ctx context.Context, orderID string, order *domain.Order, claimed *bool, logger *slog.Logger) attemptOutcome {
	if err := ctx.Err(); err != nil {
		return attemptOutcome{kind: outcomeInterrupted, err: err}
	}

	if !p.breaker.Allow() {
		observability.RecordBreakerRejection()
		return attemptOutcome{kind: outcomeBreakerOpen, err: ErrCircuitOpen}
	}

	if !*claimed {
		ok, err := p.claim(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return attemptOutcome{kind: outcomeInterrupted, err: ctx.Err()}
			}
			return attemptOutcome{kind: outcomeClaimFailed, err: err}
		}
		if !ok {
			return attemptOutcome{kind: outcomeAlreadyHandled}
		}
		*claimed = true
		logger.Debug("order claimed", "operation", "claim")
	}

	res, err := p.submit(ctx, order)
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{kind: outcomeInterrupted, err: ctx.Err()}
		}
		p.breaker.RecordFailure()
		return attemptOutcome{kind: outcomeSettlementFailed, err: err}
	}

	p.breaker.RecordSuccess()
	return attemptOutcome{kind: outcomeSubmitted, result: res}
}

func (p *Processor) claim(ctx context.Context, orderID string) (bool, error) {
	start := time.Now()
	ok, err := Claim(ctx, p.store, orderID)
	observability.RecordDBQuery("claim", time.Since(start).Seconds(), err)
	return ok, err
}

func (p *Processor) submit(ctx context.Context, order *domain.Order) (*settlement.SubmitResult, error) {
	start := time.Now()
	res, err := p.settlement.SubmitOrder(ctx, order.Quote)
	observability.RecordSettlementCall(time.Since(start).Seconds(), err)
	if err == nil && res == nil {
		err = errors.New("settlement returned no result")
	}
	return res, err
}

func (p *Processor) markSubmitted(ctx context.Context, orderID string, res *settlement.SubmitResult, attempts int, logger *slog.Logger) domain.ProcessingResult {
	fields := &storage.StatusFields{ExternalOrderID: &res.OrderID}
	if res.TransactionHash != "" {
		fields.TransactionHash = &res.TransactionHash
	}

	result := domain.ProcessingResult{
		Success:         true,
		ExternalOrderID: res.OrderID,
		TransactionHash: res.TransactionHash,
		Attempts:        attempts,
	}

	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	start := time.Now()
	err := p.store.UpdateStatus(persistCtx, orderID, domain.OrderStatusSubmitted, fields)
	observability.RecordDBQuery("update_status", time.Since(start).Seconds(), err)
	if err != nil {
		// Settlement already happened; retrying it would duplicate the side effect.
		result.Error = fmt.Sprintf("persist SUBMITTED: %v", err)
		logger.Error("order settled but status update failed",
			"operation", "update_status",
			"external_order_id", res.OrderID,
			"error", err,
		)
		return result
	}

	logger.Info("order submitted",
		"operation", "submit",
		"external_order_id", res.OrderID,
		"transaction_hash", res.TransactionHash,
		"attempts", attempts,
	)
	return result
}

func (p *Processor) markFailed(ctx context.Context, orderID string, order *domain.Order, claimed bool, cause error, logger *slog.Logger) domain.ProcessingResult {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	if claimed {
		p.writeDeadLetter(ctx, orderID, order, msg)

		start := time.Now()
		err := p.store.UpdateStatus(persistCtx, orderID, domain.OrderStatusFailed, nil)
		observability.RecordDBQuery("update_status", time.Since(start).Seconds(), err)
		if err != nil {
			logger.Error("failed to mark order FAILED", "operation", "update_status", "error", err)
		}
	} else {
		// Never claimed: fail it only if nobody else has taken it since.
		start := time.Now()
		n, err := p.store.ConditionalUpdateStatus(persistCtx, orderID, domain.OrderStatusPending, domain.OrderStatusFailed, nil)
		observability.RecordDBQuery("update_status", time.Since(start).Seconds(), err)
		switch {
		case err != nil:
			logger.Error("failed to mark order FAILED", "operation", "update_status", "error", err)
			p.writeDeadLetter(ctx, orderID, order, msg)
		case n == 0:
			logger.Info("order no longer PENDING, leaving it to its owner",
				"operation", "update_status",
				"error", msg,
			)
			return domain.ProcessingResult{Success: true, AlreadyHandled: true, Attempts: p.maxRetries}
		default:
			p.writeDeadLetter(ctx, orderID, order, msg)
		}
	}

	logger.Error("order failed permanently",
		"operation", "process",
		"attempts", p.maxRetries,
		"error", msg,
	)
	return domain.ProcessingResult{Success: false, Attempts: p.maxRetries, Error: msg}
}

func (p *Processor) writeDeadLetter(ctx context.Context, orderID string, order *domain.Order, cause string) {
	if p.deadLetters != nil {
		p.deadLetters.Write(ctx, orderID, order, cause, p.maxRetries)
	}
}

func (p *Processor) interrupted(attempts int, claimed bool, cause error, logger *slog.Logger) domain.ProcessingResult {
	logger.Warn("order processing interrupted",
		"operation", "process",
		"attempts", attempts,
		"claimed", claimed,
		"error", cause,
	)
	return domain.ProcessingResult{
		Interrupted: true,
		Attempts:    attempts,
		Error:       fmt.Sprintf("interrupted: %v", cause),
	}
}

func outcomeLabel(r domain.ProcessingResult) string {
	switch {
	case r.AlreadyHandled:
		return observability.OutcomeAlreadyHandled
	case r.Success:
		return observability.OutcomeSubmitted
	case r.Interrupted:
		return observability.OutcomeInterrupted
	default:
		return observability.OutcomeFailed
	}
}

func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
