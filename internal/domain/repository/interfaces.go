package repository

import (
	"context"
	"time"

	"X402Chat/internal/domain/models"
)

// MarketDataProvider fetches live market data. Every method fails independently.
type MarketDataProvider interface {
	Quote(ctx context.Context, coinID string) (*models.CoinQuote, error)
	TopGainers(ctx context.Context, limit int) ([]models.MarketCoin, error)
	TopCoins(ctx context.Context, limit int) ([]models.MarketCoin, error)
	Trends(ctx context.Context, trendingLimit int) (*models.MarketTrends, error)
	Search(ctx context.Context, query string, limit int) ([]models.TokenMatch, error)
}

// CompletionMessage is one chat-completion message.
type CompletionMessage struct {
	Role    string
	Content string
}

// CompletionProvider is a generative text backend.
type CompletionProvider interface {
	// Configured reports whether credentials are present; it performs no I/O.
	Configured() bool
	Complete(ctx context.Context, messages []CompletionMessage) (string, error)
}

// WindowStore holds per-key fixed-window counters.
type WindowStore interface {
	Get(ctx context.Context, key string) (models.RateWindow, bool, error)
	// IncrementOrReset atomically starts a new window at now (count 1) when the key is
	// absent or now-start > window, otherwise increments the count.
	IncrementOrReset(ctx context.Context, key string, now time.Time, window time.Duration) (models.RateWindow, error)
}

// SignatureRegistry remembers payment signatures that were already accepted.
type SignatureRegistry interface {
	// Claim returns true only for the first caller presenting signature.
	Claim(ctx context.Context, signature, payer string) (bool, error)
	// Owner returns the claim recorded for signature, if it is still remembered.
	Owner(ctx context.Context, signature string) (models.SignatureClaim, bool, error)
}

// UsagePublisher streams usage events to a message broker.
type UsagePublisher interface {
	Publish(ctx context.Context, e *models.UsageEvent) error
	PublishBatch(ctx context.Context, events []*models.UsageEvent) error
	Close() error
}

// UsageStorage persists usage events.
type UsageStorage interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, events []*models.UsageEvent) error
	CountByWallet(ctx context.Context, wallet string, since time.Time) (int64, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordPayment(status string)
	RecordRateLimited()
	RecordIntent(intent string)
	RecordUpstreamError(source string)
	RecordComposerTier(tier string)
	RecordUsage(backend string, err error)
	RecordLatency(op string, seconds float64)
}
