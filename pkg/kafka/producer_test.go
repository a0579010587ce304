package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestNewProducerAppliesOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithCompression("lz4"),
		WithRequiredAcks(1),
		WithBatching(0, 50*time.Millisecond),
		WithHashByKey(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, kafka.Lz4, p.writer.Compression)
	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
	assert.Equal(t, 100, p.writer.BatchSize, "zero size keeps the default")
	assert.Equal(t, 50*time.Millisecond, p.writer.BatchTimeout)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}

func TestProducerCloseIsIdempotent(t *testing.T) {
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestPublishBatchSkipsEmpty(t *testing.T) {
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.NoError(t, p.PublishBatch(context.Background(), "x402.chat.usage", nil))
}

func TestEncode(t *testing.T) {
	b, err := encode([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encode("text")
	require.NoError(t, err)
	assert.Equal(t, "text", string(b))

	b, err = encode(map[string]string{"wallet": "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"wallet":"abc"}`, string(b))

	_, err = encode(make(chan int))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression(""))
	assert.Equal(t, kafka.Snappy, parseCompression("brotli"))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		exp := 100 * time.Millisecond * time.Duration(1<<uint(attempt-1))
		if exp > time.Second {
			exp = time.Second
		}
		assert.LessOrEqual(t, d, exp)
		assert.GreaterOrEqual(t, d, exp/2)
	}

	assert.LessOrEqual(t, backoffWithJitter(0, 0, 1), 50*time.Millisecond)
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(WithConsumerGroupID("x402-usage-writer"))
	assert.Error(t, err)
}
