// Package kafkastream implements stream.Log on Kafka consumer groups.
//
// A stream key maps to a topic. Entry ids are "<partition>-<offset>" and
// acknowledging an entry commits its offset for the group.
package kafkastream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"exchange-order-worker/internal/stream"
)

// Log implements stream.Log with kafka-go readers and a shared writer.
type Log struct {
	brokers []string
	writer  *kafka.Writer

	mu      sync.Mutex
	starts  map[groupKey]int64
	readers map[groupKey]*kafka.Reader
	pending map[groupKey]map[string]kafka.Message
}

type groupKey struct {
	topic string
	group string
}

// New creates a Log against brokers.
func New(brokers []string) *Log {
	return &Log{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		starts:  make(map[groupKey]int64),
		readers: make(map[groupKey]*kafka.Reader),
		pending: make(map[groupKey]map[string]kafka.Message),
	}
}

// Compile-time interface check.
var _ stream.Log = (*Log)(nil)

// CreateGroup records where a new group starts and optionally creates the topic.
// Kafka registers the group itself on first fetch, so an existing group is never an error.
func (l *Log) CreateGroup(ctx context.Context, topic, group, start string, mkStream bool) error {
	if mkStream {
		if err := l.createTopic(ctx, topic); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts[groupKey{topic, group}] = startOffset(start)
	return nil
}

// ReadGroup fetches at most one message, waiting up to block.
func (l *Log) ReadGroup(ctx context.Context, group, consumer, topic string, block time.Duration, _ int) ([]stream.Entry, error) {
	key := groupKey{topic, group}
	r, err := l.reader(key, consumer)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, block)
	defer cancel()

	msg, err := r.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", topic, err)
	}

	values, err := decodeValues(msg.Value)
	if err != nil {
		// Undecodable payloads surface as empty entries so the consumer drops and commits them.
		values = map[string]string{}
	}

	id := entryID(msg.Partition, msg.Offset)
	l.mu.Lock()
	l.pending[key][id] = msg
	l.mu.Unlock()

	return []stream.Entry{{ID: id, Values: values}}, nil
}

// Ack commits the offsets of ids for group.
func (l *Log) Ack(ctx context.Context, topic, group string, ids ...string) error {
	key := groupKey{topic, group}

	l.mu.Lock()
	r, ok := l.readers[key]
	if !ok {
		l.mu.Unlock()
		return stream.ErrNoGroup
	}
	msgs := make([]kafka.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := l.pending[key][id]; ok {
			msgs = append(msgs, m)
			delete(l.pending[key], id)
		}
	}
	l.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}
	if err := r.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit %s: %w", topic, err)
	}
	return nil
}

// Publish writes values as a JSON message keyed by orderId.
// Offsets are assigned by the broker asynchronously, so the returned id is empty.
func (l *Log) Publish(ctx context.Context, topic string, values map[string]string) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	err = l.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(values[stream.FieldOrderID]),
		Value: data,
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", topic, err)
	}
	return "", nil
}

// Close closes all readers and the writer.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for key, r := range l.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.readers, key)
	}
	if err := l.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Log) reader(key groupKey, consumer string) (*kafka.Reader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.readers[key]; ok {
		return r, nil
	}
	start, ok := l.starts[key]
	if !ok {
		return nil, stream.ErrNoGroup
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     l.brokers,
		GroupID:     key.group,
		Topic:       key.topic,
		StartOffset: start,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		Dialer:      &kafka.Dialer{ClientID: consumer, Timeout: 5 * time.Second},
	})
	l.readers[key] = r
	l.pending[key] = make(map[string]kafka.Message)
	return r, nil
}

func (l *Log) createTopic(ctx context.Context, topic string) error {
	if len(l.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", l.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// startOffset maps a group start position to a kafka-go start offset.
func startOffset(start string) int64 {
	if start == stream.StartNewOnly {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func entryID(partition int, offset int64) string {
	return fmt.Sprintf("%d-%d", partition, offset)
}

func decodeValues(data []byte) (map[string]string, error) {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return values, nil
}
