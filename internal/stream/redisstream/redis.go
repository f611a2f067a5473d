// Package redisstream implements stream.Log on Redis Streams consumer groups.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"exchange-order-worker/internal/stream"
)

// Client timeouts.
const (
	dialTimeout    = 5 * time.Second
	commandTimeout = 3 * time.Second
)

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = commandTimeout
	opts.WriteTimeout = commandTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Log implements stream.Log with XGROUP / XREADGROUP / XACK / XADD.
type Log struct {
	client redis.Cmdable
}

// New wraps a Redis client.
func New(client redis.Cmdable) *Log {
	return &Log{client: client}
}

// Compile-time interface check.
var _ stream.Log = (*Log)(nil)

// CreateGroup creates group. BUSYGROUP (already exists) is treated as success.
func (l *Log) CreateGroup(ctx context.Context, streamKey, group, start string, mkStream bool) error {
	var err error
	if mkStream {
		err = l.client.XGroupCreateMkStream(ctx, streamKey, group, start).Err()
	} else {
		err = l.client.XGroupCreate(ctx, streamKey, group, start).Err()
	}
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("xgroup create %s %s: %w", streamKey, group, err)
	}
	return nil
}

// ReadGroup reads new entries (id ">") for consumer.
func (l *Log) ReadGroup(ctx context.Context, group, consumer, streamKey string, block time.Duration, count int) ([]stream.Entry, error) {
	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{streamKey, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if isNoGroup(err) {
			return nil, fmt.Errorf("xreadgroup %s: %w", streamKey, stream.ErrNoGroup)
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", streamKey, err)
	}

	var entries []stream.Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, stream.Entry{ID: msg.ID, Values: stringValues(msg.Values)})
		}
	}
	return entries, nil
}

// Ack acknowledges ids for group.
func (l *Log) Ack(ctx context.Context, streamKey, group string, ids ...string) error {
	if err := l.client.XAck(ctx, streamKey, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", streamKey, err)
	}
	return nil
}

// Publish appends values with an auto-generated id.
func (l *Log) Publish(ctx context.Context, streamKey string, values map[string]string) (string, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}

	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", streamKey, err)
	}
	return id, nil
}

func stringValues(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch s := v.(type) {
		case string:
			out[k] = s
		case []byte:
			out[k] = string(s)
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "NOGROUP")
}
