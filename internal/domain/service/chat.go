package service

import (
	"context"

	"X402Chat/internal/domain/models"

	"github.com/shopspring/decimal"
)

// PaymentVerifier resolves payment proofs against the ledger.
type PaymentVerifier interface {
	Terms() models.PaymentTerms
	BuildTransferTransaction(ctx context.Context, payer string, amount decimal.Decimal, memo string) (*models.TransferTransaction, error)
	Verify(ctx context.Context, proof *models.PaymentProof) models.PaymentStatus
}

// BalanceOracle reads settlement-asset balances.
type BalanceOracle interface {
	GetBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
	HasSufficientFunds(ctx context.Context, wallet string, required decimal.Decimal) (bool, error)
}

// RateLimiter counts paid messages per wallet.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, wallet string) (models.RateDecision, error)
}

// IntentClassifier routes a message to an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) models.Classification
}

// MarketDataGateway returns a snapshot for a market-data intent, or false when
// the upstream could not serve it.
type MarketDataGateway interface {
	Fetch(ctx context.Context, c models.Classification) (models.MarketSnapshot, bool)
}

// ResponseComposer turns data or free text into the reply shown to the user.
type ResponseComposer interface {
	Format(ctx context.Context, snapshot models.MarketSnapshot) models.Reply
	Unavailable(intent models.Intent) models.Reply
	Converse(ctx context.Context, message string, history []models.ConversationTurn) models.Reply
}

// UsageRecorder accepts usage events without blocking the caller.
type UsageRecorder interface {
	Submit(e *models.UsageEvent) bool
}
