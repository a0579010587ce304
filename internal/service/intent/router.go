package intent

import (
	"context"
	"strings"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"
	"X402Chat/pkg/util"
)

var _ service.IntentClassifier = (*Router)(nil)

// Rule maps a lower-cased message to an intent.
type Rule struct {
	Name   string
	Intent models.Intent
	Match  func(lower string) bool
}

// Rules are evaluated in order; the first match wins.
var Rules = []Rule{
	{
		Name:   "bitcoin price",
		Intent: models.IntentBitcoinPrice,
		Match: func(m string) bool {
			return strings.Contains(m, "bitcoin") && util.ContainsAny(m, "price", "current")
		},
	},
	{
		Name:   "top gainers",
		Intent: models.IntentTopGainers,
		Match: func(m string) bool {
			return util.ContainsAny(m, "top", "best") && util.ContainsAny(m, "gainer", "performer", "rising")
		},
	},
	{
		Name:   "market trends",
		Intent: models.IntentMarketTrends,
		Match: func(m string) bool {
			return strings.Contains(m, "market") && util.ContainsAny(m, "trend", "overview", "sentiment")
		},
	},
	{
		Name:   "ethereum price",
		Intent: models.IntentEthereumPrice,
		Match: func(m string) bool {
			return strings.Contains(m, "price") && util.ContainsAny(m, "ethereum", "eth")
		},
	},
	{
		Name:   "solana price",
		Intent: models.IntentSolanaPrice,
		Match: func(m string) bool {
			return strings.Contains(m, "price") && util.ContainsAny(m, "solana", "sol")
		},
	},
	{
		Name:   "top coins",
		Intent: models.IntentTopCoins,
		Match: func(m string) bool {
			return util.ContainsAny(m, "top", "largest") && util.ContainsAny(m, "coin", "crypto", "market cap")
		},
	},
}

// TokenSearcher looks up tokens by name or symbol.
type TokenSearcher interface {
	SearchTokens(ctx context.Context, query string) ([]models.TokenMatch, error)
}

// Option configures Router.
type Option func(*Router)

func WithRules(rules []Rule) Option {
	return func(r *Router) {
		r.rules = rules
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router classifies messages by keyword rules, falling back to a token search.
type Router struct {
	rules    []Rule
	searcher TokenSearcher
	logger   *logger.Logger
	metrics  repository.Metrics
}

// NewRouter creates a Router. A nil searcher disables the token search fallback.
func NewRouter(searcher TokenSearcher, opts ...Option) *Router {
	r := &Router{
		rules:    Rules,
		searcher: searcher,
		logger:   logger.Nop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Classify(ctx context.Context, message string) models.Classification {
	c := r.classify(ctx, message)
	r.metrics.RecordIntent(string(c.Intent))
	return c
}

func (r *Router) classify(ctx context.Context, message string) models.Classification {
	query := strings.TrimSpace(message)
	lower := strings.ToLower(query)

	for _, rule := range r.rules {
		if rule.Match(lower) {
			return models.Classification{Intent: rule.Intent, Query: query}
		}
	}

	if r.searcher == nil || query == "" {
		return models.Classification{Intent: models.IntentGeneric, Query: query}
	}

	matches, err := r.searcher.SearchTokens(ctx, query)
	if err != nil {
		r.logger.Warn("token search failed, treating as conversation",
			logger.String("query", query),
			logger.Error(err))
		return models.Classification{Intent: models.IntentGeneric, Query: query}
	}
	if len(matches) == 0 {
		return models.Classification{Intent: models.IntentGeneric, Query: query}
	}
	return models.Classification{Intent: models.IntentTokenSearch, Query: query, Matches: matches}
}
