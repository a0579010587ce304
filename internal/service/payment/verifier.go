package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/internal/domain/service"
	"X402Chat/internal/service/solana"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Ledger is the subset of the Solana RPC surface used for payments.
type Ledger interface {
	GetAccountInfo(ctx context.Context, account, commitment string) (*solana.AccountInfo, error)
	GetParsedTransaction(ctx context.Context, signature, commitment string) (*solana.ParsedTransaction, error)
	GetTokenAccountBalance(ctx context.Context, account, commitment string) (*solana.UITokenAmount, error)
	GetLatestBlockhash(ctx context.Context, commitment string) (*solana.Blockhash, error)
}

// SignatureAwaiter blocks until a signature reaches a commitment level.
type SignatureAwaiter interface {
	Await(ctx context.Context, signature, commitment string) error
}

var (
	_ Ledger           = (*solana.RPCClient)(nil)
	_ SignatureAwaiter = (*solana.SignatureWatcher)(nil)

	_ service.PaymentVerifier = (*Verifier)(nil)
)

// Config holds the settlement terms.
type Config struct {
	Mint               string
	Decimals           int32
	Recipient          string
	Amount             decimal.Decimal
	Currency           string
	Memo               string
	Commitment         string
	MinSignatureLength int
	AwaitTimeout       time.Duration // 0 disables waiting for unseen signatures
	// MaxAge rejects transfers settled longer ago, so a transaction stays
	// acceptable only while its claim is still remembered. 0 disables the check.
	MaxAge time.Duration
}

// ageMargin keeps MaxAge safely inside the replay window.
const ageMargin = time.Hour

// MaxTransactionAge derives MaxAge from how long claims are remembered.
func MaxTransactionAge(replayTTL time.Duration) time.Duration {
	if replayTTL > 2*ageMargin {
		return replayTTL - ageMargin
	}
	return replayTTL / 2
}

// Option configures Verifier.
type Option func(*Verifier)

func WithRegistry(r repository.SignatureRegistry) Option {
	return func(v *Verifier) {
		v.registry = r
	}
}

func WithAwaiter(a SignatureAwaiter) Option {
	return func(v *Verifier) {
		v.awaiter = a
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(v *Verifier) {
		v.logger = l
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// Verifier checks settled USDC transfers and builds unsigned ones.
type Verifier struct {
	cfg          Config
	ledger       Ledger
	registry     repository.SignatureRegistry
	awaiter      SignatureAwaiter
	logger       *logger.Logger
	metrics      repository.Metrics
	mint         solana.PublicKey
	recipientATA solana.PublicKey
	required     uint64
	now          func() time.Time
}

func NewVerifier(cfg Config, ledger Ledger, opts ...Option) (*Verifier, error) {
	mint, err := solana.ParsePublicKey(cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	recipient, err := solana.ParsePublicKey(cfg.Recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	recipientATA, err := solana.AssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("recipient token account: %w", err)
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solana.CommitmentFinalized
	}

	v := &Verifier{
		cfg:          cfg,
		ledger:       ledger,
		logger:       logger.Nop(),
		metrics:      metrics.Nop{},
		mint:         mint,
		recipientATA: recipientATA,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.required, err = baseUnits(cfg.Amount, cfg.Decimals)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Verifier) Terms() models.PaymentTerms {
	return models.PaymentTerms{
		Amount:    v.cfg.Amount,
		Currency:  v.cfg.Currency,
		Recipient: v.cfg.Recipient,
		Memo:      v.cfg.Memo,
	}
}

// RecipientTokenAccount is the token account payments must land in.
func (v *Verifier) RecipientTokenAccount() string {
	return v.recipientATA.String()
}

// Verify resolves proof exactly once. Every ledger failure resolves to invalid.
func (v *Verifier) Verify(ctx context.Context, proof *models.PaymentProof) models.PaymentStatus {
	if proof.Status != models.PaymentUnverified {
		return proof.Status
	}

	start := time.Now()
	status, reason := v.verify(ctx, proof)
	proof.Resolve(status, reason)
	v.metrics.RecordPayment(string(proof.Status))
	v.metrics.RecordLatency("payment_verify", time.Since(start).Seconds())

	if proof.Status == models.PaymentValid {
		v.logger.Info("payment verified",
			logger.String("signature", proof.Signature),
			logger.String("payer", proof.Payer))
	} else {
		v.logger.Warn("payment rejected",
			logger.String("signature", proof.Signature),
			logger.String("payer", proof.Payer),
			logger.String("reason", proof.Reason))
	}
	return proof.Status
}

func (v *Verifier) verify(ctx context.Context, proof *models.PaymentProof) (models.PaymentStatus, string) {
	if len(proof.Signature) < v.cfg.MinSignatureLength {
		return models.PaymentInvalid, "signature too short"
	}
	if !solana.ValidSignature(proof.Signature) {
		return models.PaymentInvalid, "malformed signature"
	}
	payer, err := solana.ParsePublicKey(proof.Payer)
	if err != nil {
		return models.PaymentInvalid, "malformed payer"
	}
	payerATA, err := solana.AssociatedTokenAddress(payer, v.mint)
	if err != nil {
		return models.PaymentInvalid, "payer token account: " + err.Error()
	}

	tx, err := v.fetchTransaction(ctx, proof.Signature)
	switch {
	case err != nil:
		return models.PaymentInvalid, "ledger lookup failed: " + err.Error()
	case tx == nil:
		return models.PaymentInvalid, "transaction not found"
	case tx.Meta == nil:
		return models.PaymentInvalid, "transaction metadata missing"
	case tx.Meta.Err != nil:
		return models.PaymentInvalid, fmt.Sprintf("transaction failed: %v", tx.Meta.Err)
	}
	if reason := v.checkAge(tx); reason != "" {
		return models.PaymentInvalid, reason
	}

	paid := v.transferred(tx, payerATA.String())
	if paid < v.required {
		return models.PaymentInvalid, fmt.Sprintf("insufficient transfer: %d < %d base units", paid, v.required)
	}

	if v.registry != nil {
		claimed, err := v.registry.Claim(ctx, proof.Signature, proof.Payer)
		if err != nil {
			return models.PaymentInvalid, "signature registry unavailable: " + err.Error()
		}
		if !claimed {
			v.logReplay(ctx, proof)
			return models.PaymentInvalid, models.ReasonSignatureReused
		}
	}
	return models.PaymentValid, ""
}

func (v *Verifier) checkAge(tx *solana.ParsedTransaction) string {
	if v.cfg.MaxAge <= 0 {
		return ""
	}
	if tx.BlockTime == nil {
		return "transaction block time unknown"
	}
	age := v.now().Sub(time.Unix(*tx.BlockTime, 0))
	if age > v.cfg.MaxAge {
		return fmt.Sprintf("transaction too old: settled %s ago", age.Truncate(time.Second))
	}
	return ""
}

// logReplay flags a signature presented again by a different wallet.
func (v *Verifier) logReplay(ctx context.Context, proof *models.PaymentProof) {
	claim, ok, err := v.registry.Owner(ctx, proof.Signature)
	if err != nil || !ok || claim.Payer == proof.Payer {
		return
	}
	v.logger.Warn("payment signature replayed by another wallet",
		logger.String("signature", proof.Signature),
		logger.String("payer", proof.Payer),
		logger.String("first_payer", claim.Payer),
		logger.String("claimed_at", claim.ClaimedAt.Format(time.RFC3339)))
}

// fetchTransaction reads the transaction, optionally waiting once for a
// signature the node has not seen yet.
func (v *Verifier) fetchTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	tx, err := v.ledger.GetParsedTransaction(ctx, signature, v.cfg.Commitment)
	if err != nil || tx != nil || v.awaiter == nil || v.cfg.AwaitTimeout <= 0 {
		return tx, err
	}

	actx, cancel := context.WithTimeout(ctx, v.cfg.AwaitTimeout)
	defer cancel()
	if err := v.awaiter.Await(actx, signature, v.cfg.Commitment); err != nil {
		return nil, fmt.Errorf("await signature: %w", err)
	}
	return v.ledger.GetParsedTransaction(ctx, signature, v.cfg.Commitment)
}

// transferred sums token transfers from source into the recipient's token
// account, counting only those whose mint is the settlement mint.
func (v *Verifier) transferred(tx *solana.ParsedTransaction, source string) uint64 {
	dest := v.recipientATA.String()
	destMint, _ := tx.PostTokenMint(dest)

	var total uint64
	for _, ix := range tx.AllInstructions() {
		ti, ok := ix.TokenInstruction()
		if !ok || (ti.Type != "transfer" && ti.Type != "transferChecked") {
			continue
		}
		if ti.Info.Source != source || ti.Info.Destination != dest {
			continue
		}

		mint := ti.Info.Mint
		if mint == "" {
			mint = destMint
		}
		if mint != v.cfg.Mint {
			continue
		}

		raw := ti.Info.Amount
		if ti.Info.TokenAmount != nil {
			raw = ti.Info.TokenAmount.Amount
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		if total > math.MaxUint64-n {
			return math.MaxUint64
		}
		total += n
	}
	return total
}

// BuildTransferTransaction returns an unsigned transfer of amount from payer
// to the recipient. models.ErrAccountMissing means the payer holds no token account.
func (v *Verifier) BuildTransferTransaction(ctx context.Context, payer string, amount decimal.Decimal, memo string) (*models.TransferTransaction, error) {
	owner, err := solana.ParsePublicKey(payer)
	if err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}
	units, err := baseUnits(amount, v.cfg.Decimals)
	if err != nil {
		return nil, err
	}

	source, err := solana.AssociatedTokenAddress(owner, v.mint)
	if err != nil {
		return nil, fmt.Errorf("payer token account: %w", err)
	}
	info, err := v.ledger.GetAccountInfo(ctx, source.String(), solana.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get payer token account: %w", err)
	}
	if info == nil {
		return nil, models.ErrAccountMissing
	}

	dest, err := v.ledger.GetAccountInfo(ctx, v.recipientATA.String(), solana.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get recipient token account: %w", err)
	}
	if dest == nil {
		v.logger.Warn("recipient token account does not exist, transfer will fail on chain",
			logger.String("account", v.recipientATA.String()))
	}

	bh, err := v.ledger.GetLatestBlockhash(ctx, solana.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}

	encoded, err := solana.BuildTransferTransaction(solana.TransferParams{
		Payer:           owner,
		Source:          source,
		Destination:     v.recipientATA,
		Amount:          units,
		Memo:            memo,
		RecentBlockhash: bh.Blockhash,
	})
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	v.logger.Debug("built payment transaction",
		logger.String("payer", payer),
		logger.Uint64("base_units", units))

	return &models.TransferTransaction{
		Transaction:        encoded,
		Payer:              payer,
		Recipient:          v.cfg.Recipient,
		SourceAccount:      source.String(),
		DestinationAccount: v.recipientATA.String(),
		Amount:             amount,
		BaseUnits:          units,
		Memo:               memo,
		RecentBlockhash:    bh.Blockhash,
	}, nil
}

// baseUnits converts a UI amount to the mint's smallest unit, rounding down.
func baseUnits(amount decimal.Decimal, decimals int32) (uint64, error) {
	units := amount.Shift(decimals).Floor()
	if !units.IsPositive() {
		return 0, errors.New("amount is below one base unit")
	}
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows base units", amount)
	}
	return units.BigInt().Uint64(), nil
}
