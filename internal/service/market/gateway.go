package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/internal/service/intent"
	"X402Chat/pkg/cache"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"
)

const (
	TopGainersLimit = 10
	TopCoinsLimit   = 15
	TrendingLimit   = 7
	SearchLimit     = 5

	upstream = "coingecko"
)

var (
	_ service.MarketDataGateway = (*Gateway)(nil)
	_ intent.TokenSearcher      = (*Gateway)(nil)
)

type asset struct {
	id, name, symbol string
}

var quoteAssets = map[models.Intent]asset{
	models.IntentBitcoinPrice:  {id: "bitcoin", name: "Bitcoin", symbol: "BTC"},
	models.IntentEthereumPrice: {id: "ethereum", name: "Ethereum", symbol: "ETH"},
	models.IntentSolanaPrice:   {id: "solana", name: "Solana", symbol: "SOL"},
}

// Option configures Gateway.
type Option func(*Gateway)

// WithCache stores snapshots for ttl; a zero ttl disables caching.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.ttl = ttl
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// Gateway fetches one snapshot per market-data intent. Each fetch fails on
// its own and is reported as absent, never as an error.
type Gateway struct {
	provider repository.MarketDataProvider
	cache    cache.Service
	ttl      time.Duration
	logger   *logger.Logger
	metrics  repository.Metrics
}

func NewGateway(provider repository.MarketDataProvider, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		logger:   logger.Nop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Fetch(ctx context.Context, c models.Classification) (models.MarketSnapshot, bool) {
	if !c.Intent.IsMarketData() {
		return models.MarketSnapshot{}, false
	}

	if c.Intent == models.IntentTokenSearch {
		matches := c.Matches
		if len(matches) == 0 {
			var err error
			if matches, err = g.SearchTokens(ctx, c.Query); err != nil || len(matches) == 0 {
				return models.MarketSnapshot{}, false
			}
		}
		return models.MarketSnapshot{Intent: c.Intent, Query: c.Query, Matches: matches}, true
	}

	key := cache.GenerateKey("market", c.Intent)
	var snap models.MarketSnapshot
	if g.cached(ctx, key, &snap) {
		return snap, true
	}

	start := time.Now()
	snap, err := g.fetch(ctx, c.Intent)
	g.metrics.RecordLatency("market_"+string(c.Intent), time.Since(start).Seconds())
	if err != nil {
		g.metrics.RecordUpstreamError(upstream)
		g.logger.Warn("market data unavailable",
			logger.String("intent", string(c.Intent)),
			logger.Error(err))
		return models.MarketSnapshot{}, false
	}

	g.store(ctx, key, snap)
	return snap, true
}

func (g *Gateway) fetch(ctx context.Context, in models.Intent) (models.MarketSnapshot, error) {
	snap := models.MarketSnapshot{Intent: in}

	switch in {
	case models.IntentBitcoinPrice, models.IntentEthereumPrice, models.IntentSolanaPrice:
		a := quoteAssets[in]
		q, err := g.provider.Quote(ctx, a.id)
		if err != nil {
			return snap, err
		}
		q.Name, q.Symbol = a.name, a.symbol
		snap.Quote = q
	case models.IntentTopGainers:
		coins, err := g.provider.TopGainers(ctx, TopGainersLimit)
		if err != nil {
			return snap, err
		}
		snap.Coins = coins
	case models.IntentTopCoins:
		coins, err := g.provider.TopCoins(ctx, TopCoinsLimit)
		if err != nil {
			return snap, err
		}
		snap.Coins = coins
	case models.IntentMarketTrends:
		trends, err := g.provider.Trends(ctx, TrendingLimit)
		if err != nil {
			return snap, err
		}
		snap.Trends = trends
	default:
		return snap, fmt.Errorf("no market data for intent %q", in)
	}
	return snap, nil
}

// SearchTokens returns up to SearchLimit tokens matching query by name or symbol.
func (g *Gateway) SearchTokens(ctx context.Context, query string) ([]models.TokenMatch, error) {
	key := cache.GenerateKey("search", strings.ToLower(query))
	var matches []models.TokenMatch
	if g.cached(ctx, key, &matches) {
		return matches, nil
	}

	matches, err := g.provider.Search(ctx, query, SearchLimit)
	if err != nil {
		g.metrics.RecordUpstreamError(upstream)
		return nil, err
	}
	g.store(ctx, key, matches)
	return matches, nil
}

func (g *Gateway) cached(ctx context.Context, key string, dest interface{}) bool {
	if g.cache == nil || g.ttl <= 0 {
		return false
	}
	err := g.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		g.logger.Debug("market cache read failed", logger.String("key", key), logger.Error(err))
	}
	return err == nil
}

func (g *Gateway) store(ctx context.Context, key string, value interface{}) {
	if g.cache == nil || g.ttl <= 0 {
		return
	}
	if err := g.cache.Set(ctx, key, value, g.ttl); err != nil {
		g.logger.Debug("market cache write failed", logger.String("key", key), logger.Error(err))
	}
}
