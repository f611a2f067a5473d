package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"exchange-order-worker/internal/config"
	"exchange-order-worker/internal/storage"
	chstore "exchange-order-worker/internal/storage/clickhouse"
	kafkastore "exchange-order-worker/internal/storage/kafka"
	"exchange-order-worker/internal/storage/memory"
	"exchange-order-worker/internal/storage/migrations"
	pgstore "exchange-order-worker/internal/storage/postgres"
	"exchange-order-worker/internal/storage/redisstore"
	"exchange-order-worker/internal/storage/sqlite"
	"exchange-order-worker/internal/stream"
	"exchange-order-worker/internal/stream/kafkastream"
	"exchange-order-worker/internal/stream/redisstream"
)

// resources owns every backend connection opened at startup and closes
// them in reverse order.
type resources struct {
	logger  *slog.Logger
	redis   *redis.Client
	closers []func() error
}

func newResources(logger *slog.Logger) *resources {
	return &resources{logger: logger}
}

func (r *resources) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Close releases resources in reverse order of creation.
func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close resource", "error", err)
		}
	}
	r.closers = nil
}

// redisClient dials Redis once; the stream and the dead-letter sink share it.
func (r *resources) redisClient(ctx context.Context, url string) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := redisstream.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	r.redis = client
	r.onClose(client.Close)
	return client, nil
}

// orderStore creates the order store for cfg.Store.Backend.
func (r *resources) orderStore(ctx context.Context, cfg *config.Config) (storage.OrderStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewOrderStore(), nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		r.onClose(func() error { return sqlite.Close(db) })
		return sqlite.NewOrderStore(db), nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		r.onClose(func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return pgstore.NewOrderStore(pool), nil
	}
	return nil, fmt.Errorf("unknown order store %q", cfg.Store.Backend)
}

// streamLog creates the append log for cfg.Stream.Backend.
func (r *resources) streamLog(ctx context.Context, cfg *config.Config) (stream.Log, error) {
	switch cfg.Stream.Backend {
	case config.BackendMemory:
		return stream.NewMemoryLog(), nil

	case config.BackendRedis:
		client, err := r.redisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return redisstream.New(client), nil

	case config.BackendKafka:
		l := kafkastream.New(cfg.Kafka.Brokers)
		r.onClose(l.Close)
		return l, nil
	}
	return nil, fmt.Errorf("unknown stream backend %q", cfg.Stream.Backend)
}

// deadLetterSink creates the dead-letter sink for cfg.DeadLetter.Sink.
func (r *resources) deadLetterSink(ctx context.Context, cfg *config.Config) (storage.DeadLetterSink, error) {
	switch cfg.DeadLetter.Sink {
	case config.BackendMemory:
		return memory.NewDeadLetterSink(), nil

	case config.BackendRedis:
		client, err := r.redisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return redisstore.NewDeadLetterStore(client, cfg.DeadLetter.RedisKey), nil

	case config.BackendKafka:
		p, err := kafkastore.NewDeadLetterProducer(cfg.Kafka.Brokers, cfg.DeadLetter.Topic)
		if err != nil {
			return nil, err
		}
		r.onClose(p.Close)
		return p, nil

	case config.BackendClickHouse:
		conn, err := chstore.NewConn(ctx, cfg.DeadLetter.ClickHouseDSN)
		if err != nil {
			return nil, err
		}
		r.onClose(conn.Close)
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return chstore.NewDeadLetterStore(conn), nil
	}
	return nil, fmt.Errorf("unknown dead-letter sink %q", cfg.DeadLetter.Sink)
}
