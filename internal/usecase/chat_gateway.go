package usecase

import (
	"context"
	"strings"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/internal/service/solana"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"

	"github.com/google/uuid"
)

// ChatGatewayOption configures ChatGateway.
type ChatGatewayOption func(*ChatGateway)

// WithUsageRecorder sends an event for every paid reply.
func WithUsageRecorder(r service.UsageRecorder) ChatGatewayOption {
	return func(g *ChatGateway) {
		g.usage = r
	}
}

func WithGatewayLogger(l *logger.Logger) ChatGatewayOption {
	return func(g *ChatGateway) {
		g.logger = l
	}
}

func WithGatewayMetrics(m repository.Metrics) ChatGatewayOption {
	return func(g *ChatGateway) {
		g.metrics = m
	}
}

func WithGatewayClock(now func() time.Time) ChatGatewayOption {
	return func(g *ChatGateway) {
		g.now = now
	}
}

// ChatGateway runs one chat request through validation, the payment gate,
// the rate gate and intent dispatch.
type ChatGateway struct {
	verifier service.PaymentVerifier
	balance  service.BalanceOracle
	limiter  service.RateLimiter
	router   service.IntentClassifier
	market   service.MarketDataGateway
	composer service.ResponseComposer
	usage    service.UsageRecorder
	logger   *logger.Logger
	metrics  repository.Metrics
	now      func() time.Time
}

func NewChatGateway(
	verifier service.PaymentVerifier,
	balance service.BalanceOracle,
	limiter service.RateLimiter,
	router service.IntentClassifier,
	market service.MarketDataGateway,
	composer service.ResponseComposer,
	opts ...ChatGatewayOption,
) *ChatGateway {
	g := &ChatGateway{
		verifier: verifier,
		balance:  balance,
		limiter:  limiter,
		router:   router,
		market:   market,
		composer: composer,
		logger:   logger.Nop(),
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Terms are the per-message payment terms.
func (g *ChatGateway) Terms() models.PaymentTerms {
	return g.verifier.Terms()
}

// Handle returns a *models.GatewayError for every user-visible failure.
func (g *ChatGateway) Handle(ctx context.Context, req models.ChatRequest) (*models.ChatOutcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.CheckBalance {
		b, err := g.checkBalance(ctx, req.WalletAddress)
		if err != nil {
			return nil, err
		}
		return &models.ChatOutcome{Balance: b}, nil
	}

	terms := g.verifier.Terms()
	if err := g.paymentGate(ctx, req, terms); err != nil {
		return nil, err
	}

	decision, err := g.limiter.CheckAndIncrement(ctx, req.WalletAddress)
	if err != nil {
		return nil, &models.GatewayError{Kind: models.KindInternal, Message: models.MsgInternal, Err: err}
	}
	if decision == models.RateLimited {
		return nil, &models.GatewayError{Kind: models.KindRateLimited, Message: models.MsgRateLimited}
	}

	start := g.now()
	class := g.router.Classify(ctx, req.Message)
	reply := g.dispatch(ctx, class, req)
	g.metrics.RecordLatency("chat_dispatch", g.now().Sub(start).Seconds())

	g.logger.Info("chat reply",
		logger.String("wallet", req.WalletAddress),
		logger.String("intent", string(class.Intent)),
		logger.String("tier", string(reply.Tier)))

	g.recordUsage(req, class.Intent, reply.Tier, terms)

	return &models.ChatOutcome{Reply: &models.ChatReply{
		Message: reply.Text,
		Intent:  class.Intent,
		Tier:    reply.Tier,
		Terms:   terms,
	}}, nil
}

func validateRequest(req models.ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &models.GatewayError{Kind: models.KindInvalidInput, Message: models.MsgMessageRequired}
	}
	if req.WalletAddress == "" {
		return &models.GatewayError{Kind: models.KindMissingWallet, Message: models.MsgWalletRequired}
	}
	if _, err := solana.ParsePublicKey(req.WalletAddress); err != nil {
		return &models.GatewayError{Kind: models.KindInvalidInput, Message: models.MsgWalletInvalid, Err: err}
	}
	return nil
}

// checkBalance answers the side channel without touching the payment gate.
func (g *ChatGateway) checkBalance(ctx context.Context, wallet string) (*models.BalanceReply, error) {
	required := g.verifier.Terms().Amount
	balance, err := g.balance.GetBalance(ctx, wallet)
	if err != nil {
		g.logger.Error("balance check failed", logger.String("wallet", wallet), logger.Error(err))
		return nil, &models.GatewayError{Kind: models.KindInternal, Message: models.MsgBalanceCheckFailed, Err: err}
	}

	b, _ := balance.Float64()
	r, _ := required.Float64()
	return &models.BalanceReply{
		Balance:         b,
		SufficientFunds: balance.GreaterThanOrEqual(required),
		RequiredAmount:  r,
	}, nil
}

func (g *ChatGateway) paymentGate(ctx context.Context, req models.ChatRequest, terms models.PaymentTerms) error {
	if req.PaymentSignature == "" {
		return &models.GatewayError{
			Kind:    models.KindPaymentRequired,
			Message: models.MsgPaymentRequired,
			Terms:   &terms,
		}
	}

	proof := models.NewPaymentProof(req.PaymentSignature, req.WalletAddress)
	if g.verifier.Verify(ctx, proof) == models.PaymentValid {
		return nil
	}

	details := models.MsgPaymentInvalidInfo
	if proof.Reason == models.ReasonSignatureReused {
		details = models.MsgPaymentReused
	}
	return &models.GatewayError{
		Kind:    models.KindPaymentInvalid,
		Message: models.MsgPaymentInvalid,
		Details: details,
		Terms:   &terms,
	}
}

func (g *ChatGateway) dispatch(ctx context.Context, class models.Classification, req models.ChatRequest) models.Reply {
	if !class.Intent.IsMarketData() {
		return g.composer.Converse(ctx, strings.TrimSpace(req.Message), req.History)
	}

	snap, ok := g.market.Fetch(ctx, class)
	if !ok {
		return g.composer.Unavailable(class.Intent)
	}
	return g.composer.Format(ctx, snap)
}

func (g *ChatGateway) recordUsage(req models.ChatRequest, intent models.Intent, tier models.ReplyTier, terms models.PaymentTerms) {
	if g.usage == nil {
		return
	}
	ok := g.usage.Submit(&models.UsageEvent{
		ID:        uuid.NewString(),
		Wallet:    req.WalletAddress,
		Signature: req.PaymentSignature,
		Intent:    intent,
		Tier:      tier,
		Cost:      terms.Amount.String(),
		Currency:  terms.Currency,
		CreatedAt: g.now().UTC(),
	})
	if !ok {
		g.logger.Warn("usage event dropped", logger.String("wallet", req.WalletAddress))
	}
}
