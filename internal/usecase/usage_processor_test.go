package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	batches [][]*models.UsageEvent
	err     error
	closed  bool
}

func (f *fakePublisher) Publish(ctx context.Context, e *models.UsageEvent) error {
	return f.PublishBatch(ctx, []*models.UsageEvent{e})
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []*models.UsageEvent) error {
	f.batches = append(f.batches, events)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeStorage struct {
	stored []*models.UsageEvent
	err    error
	closed bool
}

func (f *fakeStorage) Init(context.Context) error { return nil }

func (f *fakeStorage) StoreBatch(_ context.Context, events []*models.UsageEvent) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, events...)
	return nil
}

func (f *fakeStorage) CountByWallet(_ context.Context, wallet string, since time.Time) (int64, error) {
	var n int64
	for _, e := range f.stored {
		if e.Wallet == wallet && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStorage) Health(context.Context) error { return nil }

func (f *fakeStorage) Close() error {
	f.closed = true
	return nil
}

type usageMetrics struct {
	metrics.Nop
	results map[string][]error
}

func (m *usageMetrics) RecordUsage(backend string, err error) {
	if m.results == nil {
		m.results = make(map[string][]error)
	}
	m.results[backend] = append(m.results[backend], err)
}

func testEvent(id string) *models.UsageEvent {
	return &models.UsageEvent{
		ID: id, Wallet: testWallet, Intent: models.IntentTopCoins, Tier: models.TierDeterministic,
		Cost: "0.00001", Currency: "USDC", CreatedAt: time.Now().UTC(),
	}
}

func TestUsageProcessorRoutesByBackend(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	events := []*models.UsageEvent{testEvent("a"), testEvent("b")}

	kafka := NewUsageProcessor(pub, store, metrics.Nop{}, BackendKafka)
	require.NoError(t, kafka.ProcessBatch(context.Background(), events))
	assert.Len(t, pub.batches, 1)
	assert.Empty(t, store.stored)

	ch := NewUsageProcessor(pub, store, metrics.Nop{}, BackendClickHouse)
	require.NoError(t, ch.Process(context.Background(), testEvent("c")))
	assert.Len(t, store.stored, 1)
	assert.Len(t, pub.batches, 1)

	none := NewUsageProcessor(nil, nil, metrics.Nop{}, BackendNone)
	assert.NoError(t, none.ProcessBatch(context.Background(), events))
}

func TestUsageProcessorRecordsResults(t *testing.T) {
	m := &usageMetrics{}
	pub := &fakePublisher{err: errors.New("broker down")}
	p := NewUsageProcessor(pub, nil, m, BackendKafka)

	err := p.ProcessBatch(context.Background(), []*models.UsageEvent{testEvent("a"), testEvent("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	require.Len(t, m.results[BackendKafka], 2)
	assert.Error(t, m.results[BackendKafka][0])
}

func TestUsageProcessorRejectsUnknownBackend(t *testing.T) {
	p := NewUsageProcessor(nil, nil, metrics.Nop{}, "s3")
	err := p.Process(context.Background(), testEvent("a"))
	assert.ErrorContains(t, err, "unknown backend: s3")

	assert.Error(t, p.Process(context.Background(), nil))
}

func TestUsageProcessorClose(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	NewUsageProcessor(pub, store, metrics.Nop{}, BackendKafka).Close()
	assert.True(t, pub.closed)
	assert.True(t, store.closed)
}
