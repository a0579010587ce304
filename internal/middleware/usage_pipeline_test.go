package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProc struct {
	mu      sync.Mutex
	batches [][]*models.UsageEvent
	calls   int
	err     error
}

func (r *recordingProc) ProcessBatch(_ context.Context, events []*models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]*models.UsageEvent(nil), events...))
	return nil
}

func (r *recordingProc) snapshot() (batches [][]*models.UsageEvent, calls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches, r.calls
}

type countingMetrics struct {
	metrics.Nop
	mu    sync.Mutex
	drops int
}

func (m *countingMetrics) RecordUsage(_ string, err error) {
	if errors.Is(err, ErrBufferFull) {
		m.mu.Lock()
		m.drops++
		m.mu.Unlock()
	}
}

func event(i int) *models.UsageEvent {
	return &models.UsageEvent{
		ID:        fmt.Sprintf("evt-%d", i),
		Wallet:    "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Intent:    models.IntentGeneric,
		Tier:      models.TierCanned,
		Cost:      "0.00001",
		Currency:  "USDC",
		CreatedAt: time.Now(),
	}
}

func TestUsagePipelineFlushesFullBatches(t *testing.T) {
	proc := &recordingProc{}
	p := NewUsagePipeline(proc, metrics.Nop{}, WithBatching(2, time.Hour))
	p.Start(context.Background())
	defer func() { _ = p.Stop(context.Background()) }()

	for i := 0; i < 4; i++ {
		require.True(t, p.Submit(event(i)))
	}

	require.Eventually(t, func() bool {
		batches, _ := proc.snapshot()
		return len(batches) == 2
	}, time.Second, 5*time.Millisecond)

	batches, _ := proc.snapshot()
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "evt-0", batches[0][0].ID)
	assert.Equal(t, "evt-3", batches[1][1].ID)
}

func TestUsagePipelineFlushesOnInterval(t *testing.T) {
	proc := &recordingProc{}
	p := NewUsagePipeline(proc, metrics.Nop{}, WithBatching(100, 10*time.Millisecond))
	p.Start(context.Background())
	defer func() { _ = p.Stop(context.Background()) }()

	require.True(t, p.Submit(event(1)))

	require.Eventually(t, func() bool {
		batches, _ := proc.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestUsagePipelineStopDrainsPending(t *testing.T) {
	proc := &recordingProc{}
	p := NewUsagePipeline(proc, metrics.Nop{}, WithBatching(100, time.Hour))
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.True(t, p.Submit(event(i)))
	}
	require.NoError(t, p.Stop(context.Background()))

	batches, _ := proc.snapshot()
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	assert.Equal(t, 3, total)
	assert.False(t, p.Submit(event(9)), "stopped pipeline accepts nothing")
}

func TestUsagePipelineDropsWhenFull(t *testing.T) {
	m := &countingMetrics{}
	p := NewUsagePipeline(&recordingProc{}, m, WithBufferSize(1))

	assert.True(t, p.Submit(event(1)))
	assert.False(t, p.Submit(event(2)))
	assert.Equal(t, 1, m.drops)
}

func TestUsagePipelineRetriesThenDrops(t *testing.T) {
	proc := &recordingProc{err: errors.New("backend down")}
	p := NewUsagePipeline(proc, metrics.Nop{},
		WithBatching(1, time.Hour),
		WithRetry(3, time.Millisecond, 2*time.Millisecond))
	p.Start(context.Background())

	require.True(t, p.Submit(event(1)))
	require.Eventually(t, func() bool {
		_, calls := proc.snapshot()
		return calls == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))

	_, calls := proc.snapshot()
	assert.Equal(t, 3, calls)
}

func TestUsagePipelineRejectsInvalidEvents(t *testing.T) {
	p := NewUsagePipeline(&recordingProc{}, metrics.Nop{})

	assert.False(t, p.Submit(nil))
	assert.False(t, p.Submit(&models.UsageEvent{Wallet: "w", CreatedAt: time.Now()}))
	assert.False(t, p.Submit(&models.UsageEvent{ID: "x", CreatedAt: time.Now()}))
	assert.False(t, p.Submit(&models.UsageEvent{ID: "x", Wallet: "w"}))
}

type fakeSpill struct {
	mu      sync.Mutex
	types   []string
	batches [][]*models.UsageEvent
}

func (f *fakeSpill) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, msgType)
	f.batches = append(f.batches, payload.([]*models.UsageEvent))
	return nil
}

func TestUsagePipelineSpillsExhaustedBatches(t *testing.T) {
	proc := &recordingProc{err: errors.New("backend down")}
	spill := &fakeSpill{}
	p := NewUsagePipeline(proc, metrics.Nop{},
		WithBatching(2, time.Hour),
		WithRetry(2, time.Millisecond, time.Millisecond),
		WithSpill(spill))
	p.Start(context.Background())

	require.True(t, p.Submit(event(1)))
	require.True(t, p.Submit(event(2)))
	require.NoError(t, p.Stop(context.Background()))

	spill.mu.Lock()
	defer spill.mu.Unlock()
	require.Len(t, spill.batches, 1)
	assert.Equal(t, []string{SpillJobType}, spill.types)
	assert.Len(t, spill.batches[0], 2)
}
