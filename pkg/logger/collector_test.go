package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestLogCollector_AggregatesDuplicatesUntilClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "app-logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "upstream failed", map[string]interface{}{"source": "coingecko"}, "x.go:1")
	}
	c.AddLog("error", "upstream failed", map[string]interface{}{"source": "openai"}, "x.go:1")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "app-logs", pub.topic)
	require.Len(t, pub.batches[0], 2)

	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		counts[e.Fields["source"]] = e.Count
	}
	assert.Equal(t, 3, counts["coingecko"])
	assert.Equal(t, 1, counts["openai"])
}

func TestLogger_ErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "t", Publisher: pub})

	l.Error("boom", String("k", "v"))
	l.Warn("not collected")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, "boom", pub.batches[0][0].Message)
	assert.Equal(t, "v", pub.batches[0][0].Fields["k"])
}
