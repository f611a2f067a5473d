package kafkastream

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-order-worker/internal/stream"
)

func TestStartOffset(t *testing.T) {
	assert.Equal(t, kafka.LastOffset, startOffset(stream.StartNewOnly))
	assert.Equal(t, kafka.FirstOffset, startOffset("0"))
}

func TestEntryID(t *testing.T) {
	assert.Equal(t, "2-1057", entryID(2, 1057))
}

func TestDecodeValues(t *testing.T) {
	values, err := decodeValues([]byte(`{"orderId":"O1","orderData":"{}"}`))
	require.NoError(t, err)
	assert.Equal(t, "O1", values[stream.FieldOrderID])

	_, err = decodeValues([]byte("not json"))
	assert.Error(t, err)
}

func TestLog_ReadWithoutGroup(t *testing.T) {
	l := New([]string{"localhost:9092"})
	defer l.Close()

	_, err := l.ReadGroup(context.Background(), "g", "c", "orders", 10*time.Millisecond, 1)
	assert.ErrorIs(t, err, stream.ErrNoGroup)

	assert.ErrorIs(t, l.Ack(context.Background(), "orders", "g", "0-1"), stream.ErrNoGroup)
}

func TestLog_CreateGroupWithoutTopicCreation(t *testing.T) {
	l := New([]string{"localhost:9092"})
	defer l.Close()

	require.NoError(t, l.CreateGroup(context.Background(), "orders", "g", stream.StartNewOnly, false))
	// idempotent
	require.NoError(t, l.CreateGroup(context.Background(), "orders", "g", stream.StartNewOnly, false))
}
