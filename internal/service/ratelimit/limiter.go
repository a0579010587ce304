package ratelimit

import (
	"context"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"
)

var _ service.RateLimiter = (*Limiter)(nil)

// Option configures Limiter.
type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Limiter) {
		l.logger = log
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// Limiter admits at most limit messages per wallet in a fixed window that
// starts with the wallet's first message and restarts on the first message
// after it has elapsed.
type Limiter struct {
	store   repository.WindowStore
	limit   int64
	window  time.Duration
	now     func() time.Time
	logger  *logger.Logger
	metrics repository.Metrics
}

func New(store repository.WindowStore, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		limit:   int64(limit),
		window:  window,
		now:     time.Now,
		logger:  logger.Nop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndIncrement counts the message, then compares. A store failure
// admits the message: the caller has already paid for it.
func (l *Limiter) CheckAndIncrement(ctx context.Context, wallet string) (models.RateDecision, error) {
	w, err := l.store.IncrementOrReset(ctx, key(wallet), l.now(), l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, admitting message",
			logger.String("wallet", wallet),
			logger.Error(err))
		return models.RateAllowed, nil
	}

	if w.Count <= l.limit {
		return models.RateAllowed, nil
	}
	l.metrics.RecordRateLimited()
	l.logger.Info("rate limit exceeded",
		logger.String("wallet", wallet),
		logger.Int64("count", w.Count))
	return models.RateLimited, nil
}

// Status reports how many messages remain in the wallet's window and when it resets.
func (l *Limiter) Status(ctx context.Context, wallet string) (remaining int64, reset time.Time, err error) {
	w, ok, err := l.store.Get(ctx, key(wallet))
	if err != nil {
		return 0, time.Time{}, err
	}
	now := l.now()
	if !ok || now.Sub(w.Start) > l.window {
		return l.limit, now.Add(l.window), nil
	}
	remaining = l.limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, w.Start.Add(l.window), nil
}

func (l *Limiter) Limit() int64 {
	return l.limit
}

func key(wallet string) string {
	return "ratelimit:" + wallet
}
