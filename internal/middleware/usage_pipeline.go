package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"X402Chat/internal/domain/models"
	domrepo "X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/queue"
)

// SpillJobType names queued usage batches that exhausted their flush attempts.
const SpillJobType = "usage_batch"

// ErrBufferFull is recorded when an event is dropped because the pipeline is saturated.
var ErrBufferFull = errors.New("usage pipeline buffer full")

var _ service.UsageRecorder = (*UsagePipeline)(nil)

// BatchProc is the downstream the pipeline flushes into.
type BatchProc interface {
	ProcessBatch(ctx context.Context, events []*models.UsageEvent) error
}

// UsagePipeline decouples request handling from the usage backend. Submit never
// blocks; a background loop batches events and flushes them with retries.
type UsagePipeline struct {
	proc        BatchProc
	metrics     domrepo.Metrics
	logger      *logger.Logger
	bufSize     int
	batchSize   int
	flushEvery  time.Duration
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
	spill       queue.Enqueuer
	bufCh       chan *models.UsageEvent
	stopCh      chan struct{}
	doneCh      chan struct{}
	started     bool
	stopped     bool
	mu          sync.Mutex
}

type PipelineOption func(*UsagePipeline)

// WithBufferSize sets how many events may wait for a flush.
func WithBufferSize(n int) PipelineOption {
	return func(p *UsagePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatching flushes when size events are pending or every interval, whichever comes first.
func WithBatching(size int, every time.Duration) PipelineOption {
	return func(p *UsagePipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if every > 0 {
			p.flushEvery = every
		}
	}
}

// WithRetry sets flush attempts per batch and the backoff between them.
func WithRetry(attempts int, backoffMin, backoffMax time.Duration) PipelineOption {
	return func(p *UsagePipeline) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
		if backoffMin > 0 {
			p.backoffMin = backoffMin
		}
		if backoffMax >= p.backoffMin {
			p.backoffMax = backoffMax
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *UsagePipeline) {
		p.logger = l
	}
}

// WithSpill hands batches that exhausted their attempts to q instead of dropping them.
func WithSpill(q queue.Enqueuer) PipelineOption {
	return func(p *UsagePipeline) {
		p.spill = q
	}
}

// NewUsagePipeline creates a new pipeline.
func NewUsagePipeline(proc BatchProc, metrics domrepo.Metrics, opts ...PipelineOption) *UsagePipeline {
	p := &UsagePipeline{
		proc:        proc,
		metrics:     metrics,
		logger:      logger.Nop(),
		bufSize:     1024,
		batchSize:   50,
		flushEvery:  2 * time.Second,
		maxAttempts: 3,
		backoffMin:  50 * time.Millisecond,
		backoffMax:  2 * time.Second,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.UsageEvent, p.bufSize)
	return p
}

// Submit enqueues e without blocking. It returns false when e is invalid,
// the buffer is full or the pipeline has stopped.
func (p *UsagePipeline) Submit(e *models.UsageEvent) bool {
	if err := validateEvent(e); err != nil {
		p.logger.Warn("usage event rejected", logger.Error(err))
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.bufCh <- e:
		return true
	default:
		p.metrics.RecordUsage("pipeline", ErrBufferFull)
		return false
	}
}

// Start launches the flush loop. ctx bounds downstream calls, not the loop;
// use Stop to end it.
func (p *UsagePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(context.WithoutCancel(ctx))
}

func (p *UsagePipeline) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batch := make([]*models.UsageEvent, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
		batch = make([]*models.UsageEvent, 0, p.batchSize)
	}

	for {
		select {
		case e := <-p.bufCh:
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stopCh:
			// drain what was accepted before Stop
			for {
				select {
				case e := <-p.bufCh:
					batch = append(batch, e)
					if len(batch) >= p.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush retries with exponential backoff. After the last attempt the batch is
// spilled when a spill queue is set, and dropped otherwise.
func (p *UsagePipeline) flush(ctx context.Context, batch []*models.UsageEvent) {
	start := time.Now()
	backoff := p.backoffMin
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err = p.proc.ProcessBatch(ctx, batch); err == nil {
			p.metrics.RecordLatency("usage_flush", time.Since(start).Seconds())
			return
		}
		if attempt == p.maxAttempts {
			break
		}
		p.logger.Warn("usage flush failed, retrying",
			logger.Int("attempt", attempt),
			logger.Int("events", len(batch)),
			logger.Error(err))
		time.Sleep(backoff)
		if backoff *= 2; backoff > p.backoffMax {
			backoff = p.backoffMax
		}
	}
	if p.spill != nil {
		serr := p.spill.Enqueue(ctx, SpillJobType, batch)
		if serr == nil {
			p.logger.Warn("usage batch spilled",
				logger.Int("events", len(batch)),
				logger.Error(err))
			return
		}
		p.logger.Error("usage spill failed", logger.Error(serr))
	}
	p.logger.Error("usage batch dropped",
		logger.Int("events", len(batch)),
		logger.Int("attempts", p.maxAttempts),
		logger.Error(err))
}

// Stop flushes pending events and waits for the loop, bounded by ctx.
func (p *UsagePipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}
	close(p.stopCh)
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("usage pipeline stop: %w", ctx.Err())
	}
}

func validateEvent(e *models.UsageEvent) error {
	if e == nil {
		return fmt.Errorf("usage event nil")
	}
	if e.ID == "" {
		return fmt.Errorf("usage event id empty")
	}
	if e.Wallet == "" {
		return fmt.Errorf("usage event wallet empty")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("usage event timestamp missing")
	}
	return nil
}
