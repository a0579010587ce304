package usecase

import (
	"context"
	"fmt"
	"time"

	"X402Chat/internal/domain/models"
	drepo "X402Chat/internal/domain/repository"
)

const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// UsageProcessor routes usage events to the configured backend.
type UsageProcessor struct {
	pub     drepo.UsagePublisher
	store   drepo.UsageStorage
	metrics drepo.Metrics
	backend string
}

// NewUsageProcessor creates a UsageProcessor. Only the dependency for backend needs to be non-nil.
func NewUsageProcessor(
	pub drepo.UsagePublisher,
	store drepo.UsageStorage,
	metrics drepo.Metrics,
	backend string,
) *UsageProcessor {
	return &UsageProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

func (p *UsageProcessor) Backend() string { return p.backend }

// Process sends a single event.
func (p *UsageProcessor) Process(ctx context.Context, e *models.UsageEvent) error {
	if e == nil {
		return fmt.Errorf("usage event is nil")
	}
	return p.ProcessBatch(ctx, []*models.UsageEvent{e})
}

// ProcessBatch sends events in one publish or insert.
func (p *UsageProcessor) ProcessBatch(ctx context.Context, events []*models.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, events)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, events)
	case BackendNone:
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	for range events {
		p.metrics.RecordUsage(p.backend, err)
	}
	if err != nil {
		return fmt.Errorf("process usage batch: %w", err)
	}
	p.metrics.RecordLatency("usage_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *UsageProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
