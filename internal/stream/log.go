// Package stream consumes order references from an append log through a
// consumer group and hands each decoded order to a Handler.
package stream

import (
	"context"
	"errors"
	"time"
)

// StartNewOnly anchors a new consumer group at the end of the log so it
// receives only entries published after creation.
const StartNewOnly = "$"

var (
	// ErrNoGroup is returned by ReadGroup when the consumer group does not exist.
	ErrNoGroup = errors.New("consumer group does not exist")

	// ErrMalformedEntry is returned when an entry cannot be decoded into an order.
	ErrMalformedEntry = errors.New("malformed stream entry")

	// ErrShutdownTimeout is returned by Stop when the loop did not exit within the grace period.
	ErrShutdownTimeout = errors.New("consumer did not stop within grace period")
)

// Entry is one log entry as delivered to a consumer.
type Entry struct {
	ID     string
	Values map[string]string
}

// Log is an ordered, replayable log with consumer-group delivery.
// Each entry is delivered to one consumer of a group at a time and stays
// pending for that group until acknowledged.
type Log interface {
	// CreateGroup creates group on stream anchored at start. An existing group is not an error.
	CreateGroup(ctx context.Context, stream, group, start string, mkStream bool) error

	// ReadGroup blocks up to block for at most count new entries for consumer.
	// Returns an empty slice and nil error when nothing arrived in time.
	ReadGroup(ctx context.Context, group, consumer, stream string, block time.Duration, count int) ([]Entry, error)

	// Ack removes ids from the group's pending set.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// Publish appends an entry and returns its log-assigned id.
	Publish(ctx context.Context, stream string, values map[string]string) (string, error)
}
