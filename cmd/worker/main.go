// Package main runs the order worker: it consumes order references from the
// stream, settles each order at most once and serves /health, /metrics and
// /status for operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-order-worker/internal/config"
	"exchange-order-worker/internal/deadletter"
	"exchange-order-worker/internal/logging"
	"exchange-order-worker/internal/processor"
	"exchange-order-worker/internal/settlement"
	"exchange-order-worker/internal/stream"
)

const serviceName = "order-worker"

func main() {
	envFile := flag.String("env-file", ".env", "KEY=VALUE file used to seed unset environment variables")
	configPath := flag.String("config", os.Getenv("WORKER_CONFIG"), "optional YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory stream, order store and dead-letter sink")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for /metrics, /health and /status (overrides METRICS_ADDR)")

	flag.Parse()

	config.LoadEnvFile(*envFile)

	var overrides []func(*config.Config)
	if *useMemory {
		overrides = append(overrides, (*config.Config).UseMemory)
	}
	if *metricsAddr != "" {
		overrides = append(overrides, func(c *config.Config) { c.Metrics.Addr = *metricsAddr })
	}

	cfg, err := config.Load(*configPath, overrides...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Service: serviceName,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Startup is bounded. The consumer gets its own context; only Stop cancels it.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	res := newResources(logger)
	defer res.Close()

	store, err := res.orderStore(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("create order store: %w", err)
	}

	orderLog, err := res.streamLog(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("create stream log: %w", err)
	}

	sink, err := res.deadLetterSink(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("create dead-letter sink: %w", err)
	}

	settlementOpts := []settlement.ClientOption{settlement.WithTimeout(cfg.Settlement.Timeout)}
	if cfg.Settlement.APIKey != "" {
		settlementOpts = append(settlementOpts, settlement.WithAPIKey(cfg.Settlement.APIKey))
	}
	settler := settlement.NewHTTPClient(cfg.Settlement.URL, settlementOpts...)

	breaker := processor.NewCircuitBreaker(processor.BreakerOptions{
		Threshold:   cfg.Processing.BreakerThreshold,
		ResetWindow: cfg.Processing.BreakerReset,
		Logger:      logger.With("component", "breaker"),
	})

	proc := processor.New(processor.Options{
		Store:      store,
		Settlement: settler,
		DeadLetters: deadletter.NewWriter(deadletter.WriterOptions{
			Sink:        sink,
			MaxErrorLen: cfg.DeadLetter.MaxErrorLen,
			Logger:      logger.With("component", "deadletter"),
		}),
		Breaker:    breaker,
		MaxRetries: cfg.Processing.MaxRetries,
		RetryDelay: cfg.Processing.RetryDelay,
		Logger:     logger.With("component", "processor"),
	})

	consumer := stream.NewConsumer(stream.ConsumerOptions{
		Log:           orderLog,
		Handler:       proc,
		Stream:        cfg.Stream.Key,
		Group:         cfg.Stream.Group,
		BlockTimeout:  cfg.Stream.BlockTimeout,
		ErrorBackoff:  cfg.Stream.ErrorBackoff,
		StatsInterval: cfg.Metrics.LogInterval,
		StatsAttrs: func() []any {
			st := breaker.State()
			return []any{"breaker_open", st.Open, "breaker_failures", st.FailureCount}
		},
		Logger: logger.With("component", "consumer"),
	})

	status := newStatusServer(cfg.Metrics.Addr, consumer, breaker, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- status.ListenAndServe()
	}()

	if err := consumer.Start(context.Background()); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	logger.Info("worker started",
		"consumer", consumer.Name(),
		"stream_backend", cfg.Stream.Backend,
		"order_store", cfg.Store.Backend,
		"dlq_sink", cfg.DeadLetter.Sink,
		"metrics_addr", cfg.Metrics.Addr,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	if err := consumer.Stop(cfg.Processing.ShutdownTimeout); err != nil {
		logger.Warn("consumer did not stop within grace period", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := status.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}

	return nil
}
