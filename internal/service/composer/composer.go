package composer

import (
	"context"
	"errors"
	"strings"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"

	"github.com/shopspring/decimal"
)

const (
	DefaultTimeout          = 20 * time.Second
	DefaultHistoryTurns     = 5
	DefaultFailureThreshold = 3
	DefaultCooldown         = time.Minute
)

var _ service.ResponseComposer = (*Composer)(nil)

var errEmptyAfterCleanup = errors.New("completion empty after cleanup")

// Option configures Composer.
type Option func(*Composer)

// WithTimeout bounds each generative call.
func WithTimeout(d time.Duration) Option {
	return func(c *Composer) {
		c.timeout = d
	}
}

func WithHistoryTurns(n int) Option {
	return func(c *Composer) {
		c.historyTurns = n
	}
}

// WithBreaker sets how many consecutive provider failures disable the
// generative tier and for how long.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Composer) {
		c.threshold = threshold
		c.cooldown = cooldown
	}
}

// WithTerms sets the price quoted by the persona and canned payment reply.
func WithTerms(t models.PaymentTerms) Option {
	return func(c *Composer) {
		c.terms = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Composer) {
		c.logger = l
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Composer) {
		c.metrics = m
	}
}

// Composer produces user-facing replies. Market replies always have a
// deterministic rendering; the generative provider only ever replaces it.
type Composer struct {
	provider     repository.CompletionProvider
	breaker      *breaker
	timeout      time.Duration
	historyTurns int
	threshold    int
	cooldown     time.Duration
	terms        models.PaymentTerms
	now          func() time.Time
	logger       *logger.Logger
	metrics      repository.Metrics
}

// New creates a Composer. provider may be nil.
func New(provider repository.CompletionProvider, opts ...Option) *Composer {
	c := &Composer{
		provider:     provider,
		timeout:      DefaultTimeout,
		historyTurns: DefaultHistoryTurns,
		threshold:    DefaultFailureThreshold,
		cooldown:     DefaultCooldown,
		terms: models.PaymentTerms{
			Amount:    decimal.RequireFromString("0.00001"),
			Currency:  "USDC",
			Recipient: "6yK1zeAnkqAe1fBP5Kk773EUm8taJvAsSxnMcYCSzhSL",
		},
		now:     time.Now,
		logger:  logger.Nop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(c.threshold, c.cooldown, c.now)
	return c
}

// Available reports whether the generative tier may be tried: a provider is
// configured and recent calls have not tripped the breaker.
func (c *Composer) Available(_ context.Context) bool {
	return c.provider != nil && c.provider.Configured() && c.breaker.allow()
}

func (c *Composer) Format(ctx context.Context, snap models.MarketSnapshot) models.Reply {
	deterministic := models.Reply{Text: FormatSnapshot(snap), Tier: models.TierDeterministic}
	if !snap.Intent.IsQuote() || snap.Quote == nil || !c.Available(ctx) {
		return c.record(deterministic)
	}

	text, err := c.complete(ctx, []repository.CompletionMessage{
		{Role: "system", Content: analystPersona},
		{Role: "user", Content: quotePrompt(snap)},
	})
	if err != nil {
		c.logger.Debug("generative analysis unavailable, using formatter",
			logger.String("intent", string(snap.Intent)),
			logger.Error(err))
		return c.record(deterministic)
	}
	return c.record(models.Reply{Text: text, Tier: models.TierGenerative})
}

func (c *Composer) Unavailable(intent models.Intent) models.Reply {
	return c.record(models.Reply{Text: UnavailableText(intent), Tier: models.TierUnavailable})
}

// Converse answers a generic message within the crypto persona. Off-topic
// messages are redirected without calling the provider.
func (c *Composer) Converse(ctx context.Context, message string, history []models.ConversationTurn) models.Reply {
	lower := strings.ToLower(message)
	if !c.Available(ctx) {
		return c.record(models.Reply{Text: cannedReply(classifyConversation(lower), c.terms), Tier: models.TierCanned})
	}
	if offTopic(lower) {
		return c.record(models.Reply{Text: cannedReply(cannedRedirect, c.terms), Tier: models.TierCanned})
	}
	canned := models.Reply{Text: cannedReply(classifyConversation(lower), c.terms), Tier: models.TierCanned}

	messages := make([]repository.CompletionMessage, 0, c.historyTurns+2)
	messages = append(messages, repository.CompletionMessage{Role: "system", Content: conversationPersona(c.terms)})
	messages = append(messages, c.recentTurns(history)...)
	messages = append(messages, repository.CompletionMessage{Role: "user", Content: message})

	text, err := c.complete(ctx, messages)
	if err != nil {
		c.logger.Warn("conversation provider failed, using canned reply", logger.Error(err))
		return c.record(canned)
	}
	return c.record(models.Reply{Text: text, Tier: models.TierGenerative})
}

// recentTurns maps the last historyTurns user and assistant turns; error turns are dropped.
func (c *Composer) recentTurns(history []models.ConversationTurn) []repository.CompletionMessage {
	turns := make([]repository.CompletionMessage, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case models.RoleUser:
			turns = append(turns, repository.CompletionMessage{Role: "user", Content: t.Content})
		case models.RoleAssistant:
			turns = append(turns, repository.CompletionMessage{Role: "assistant", Content: t.Content})
		}
	}
	if len(turns) > c.historyTurns {
		turns = turns[len(turns)-c.historyTurns:]
	}
	return turns
}

// complete runs one bounded provider call and cleans the result.
func (c *Composer) complete(ctx context.Context, messages []repository.CompletionMessage) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Complete(cctx, messages)
	c.metrics.RecordLatency("completion", time.Since(start).Seconds())
	if err != nil {
		c.breaker.failure()
		c.metrics.RecordUpstreamError("completion")
		return "", err
	}
	c.breaker.success()

	cleaned := CleanMarkdown(text)
	if cleaned == "" {
		return "", errEmptyAfterCleanup
	}
	return cleaned, nil
}

func (c *Composer) record(r models.Reply) models.Reply {
	c.metrics.RecordComposerTier(string(r.Tier))
	return r
}
