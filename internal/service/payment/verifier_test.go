package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/service/solana"
	"X402Chat/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	recipient    = "6yK1zeAnkqAe1fBP5Kk773EUm8taJvAsSxnMcYCSzhSL"
	recipientATA = "BbAkUQYadFdT3GHxnL9qqU3ESaaqGBTnDupJqeEF8hkk"
	payer        = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	payerATA     = "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B"
	signature    = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

type fakeLedger struct {
	txs      []*solana.ParsedTransaction // returned in order, last one repeats
	txErr    error
	txCalls  int
	accounts map[string]bool
	balance  *solana.UITokenAmount
	blockErr error
}

func (f *fakeLedger) GetAccountInfo(_ context.Context, account, _ string) (*solana.AccountInfo, error) {
	if f.accounts[account] {
		return &solana.AccountInfo{Lamports: 2039280, Owner: solana.TokenProgramID.String()}, nil
	}
	return nil, nil
}

func (f *fakeLedger) GetParsedTransaction(_ context.Context, _, _ string) (*solana.ParsedTransaction, error) {
	f.txCalls++
	if f.txErr != nil {
		return nil, f.txErr
	}
	if len(f.txs) == 0 {
		return nil, nil
	}
	i := f.txCalls - 1
	if i >= len(f.txs) {
		i = len(f.txs) - 1
	}
	return f.txs[i], nil
}

func (f *fakeLedger) GetTokenAccountBalance(_ context.Context, _, _ string) (*solana.UITokenAmount, error) {
	if f.balance == nil {
		return nil, errors.New("no balance")
	}
	return f.balance, nil
}

func (f *fakeLedger) GetLatestBlockhash(_ context.Context, _ string) (*solana.Blockhash, error) {
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	return &solana.Blockhash{Blockhash: "11111111111111111111111111111111", LastValidBlockHeight: 10}, nil
}

type fakeAwaiter struct {
	err   error
	calls int
}

func (a *fakeAwaiter) Await(context.Context, string, string) error {
	a.calls++
	return a.err
}

func tokenInstruction(t *testing.T, typ string, info solana.TokenInstructionInfo) solana.ParsedInstruction {
	t.Helper()
	raw, err := json.Marshal(solana.TokenInstruction{Type: typ, Info: info})
	require.NoError(t, err)
	return solana.ParsedInstruction{
		Program:   "spl-token",
		ProgramID: solana.TokenProgramID.String(),
		Parsed:    raw,
	}
}

// settledTx is a successful transaction whose destination balance is recorded for mint.
func settledTx(mint string, ixs ...solana.ParsedInstruction) *solana.ParsedTransaction {
	tx := &solana.ParsedTransaction{
		Slot: 1,
		Meta: &solana.TransactionMeta{
			PostTokenBalances: []solana.TokenBalance{{AccountIndex: 2, Mint: mint}},
		},
	}
	tx.Transaction.Message.AccountKeys = []solana.ParsedAccountKey{
		{Pubkey: payer, Signer: true, Writable: true},
		{Pubkey: payerATA, Writable: true},
		{Pubkey: recipientATA, Writable: true},
	}
	tx.Transaction.Message.Instructions = ixs
	return tx
}

func newVerifier(t *testing.T, ledger Ledger, opts ...Option) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Mint:               usdcMint,
		Decimals:           6,
		Recipient:          recipient,
		Amount:             decimal.RequireFromString("0.00001"),
		Currency:           "USDC",
		Memo:               "X402 Chat Payment",
		Commitment:         solana.CommitmentFinalized,
		MinSignatureLength: 64,
	}, ledger, opts...)
	require.NoError(t, err)
	return v
}

func newRegistry(t *testing.T) *SignatureRegistry {
	t.Helper()
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	return NewSignatureRegistry(mc, time.Hour)
}

func TestVerifier_Terms(t *testing.T) {
	v := newVerifier(t, &fakeLedger{})
	terms := v.Terms()
	assert.Equal(t, "0.00001", terms.Amount.String())
	assert.Equal(t, "USDC", terms.Currency)
	assert.Equal(t, recipient, terms.Recipient)
	assert.Equal(t, recipientATA, v.RecipientTokenAccount())
	assert.Equal(t, uint64(10), v.required)
}

func TestVerifier_ValidTransfer(t *testing.T) {
	ledger := &fakeLedger{txs: []*solana.ParsedTransaction{
		settledTx(usdcMint, tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Authority: payer, Amount: "10",
		})),
	}}
	v := newVerifier(t, ledger, WithRegistry(newRegistry(t)))

	proof := models.NewPaymentProof(signature, payer)
	assert.Equal(t, models.PaymentValid, v.Verify(context.Background(), proof))
	assert.Empty(t, proof.Reason)
}

func TestVerifier_TransferCheckedAndInnerInstructions(t *testing.T) {
	tx := settledTx(usdcMint, tokenInstruction(t, "transferChecked", solana.TokenInstructionInfo{
		Source: payerATA, Destination: recipientATA, Mint: usdcMint,
		TokenAmount: &solana.UITokenAmount{Amount: "6", Decimals: 6},
	}))
	tx.Meta.InnerInstructions = []solana.InnerInstructions{{
		Index: 0,
		Instructions: []solana.ParsedInstruction{tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Amount: "4",
		})},
	}}

	v := newVerifier(t, &fakeLedger{txs: []*solana.ParsedTransaction{tx}})
	assert.Equal(t, models.PaymentValid, v.Verify(context.Background(), models.NewPaymentProof(signature, payer)))
}

func TestVerifier_RejectsReplay(t *testing.T) {
	ledger := &fakeLedger{txs: []*solana.ParsedTransaction{
		settledTx(usdcMint, tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Amount: "10",
		})),
	}}
	v := newVerifier(t, ledger, WithRegistry(newRegistry(t)))

	first := models.NewPaymentProof(signature, payer)
	require.Equal(t, models.PaymentValid, v.Verify(context.Background(), first))

	second := models.NewPaymentProof(signature, payer)
	assert.Equal(t, models.PaymentInvalid, v.Verify(context.Background(), second))
	assert.Equal(t, "payment signature has already been used", second.Reason)
}

func TestVerifier_FailsClosed(t *testing.T) {
	transfer := func(amount string) solana.ParsedInstruction {
		return tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Amount: amount,
		})
	}
	failed := settledTx(usdcMint, transfer("10"))
	failed.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	noMeta := settledTx(usdcMint, transfer("10"))
	noMeta.Meta = nil

	tests := []struct {
		name      string
		signature string
		payer     string
		ledger    *fakeLedger
		reason    string
	}{
		{name: "short signature", signature: "abc", payer: payer, ledger: &fakeLedger{}, reason: "signature too short"},
		{name: "not base58", signature: "0OIl" + signature[4:], payer: payer, ledger: &fakeLedger{}, reason: "malformed signature"},
		{name: "bad payer", signature: signature, payer: "nope", ledger: &fakeLedger{}, reason: "malformed payer"},
		{name: "rpc error", signature: signature, payer: payer, ledger: &fakeLedger{txErr: errors.New("boom")}, reason: "ledger lookup failed: boom"},
		{name: "not found", signature: signature, payer: payer, ledger: &fakeLedger{}, reason: "transaction not found"},
		{name: "no meta", signature: signature, payer: payer, ledger: &fakeLedger{txs: []*solana.ParsedTransaction{noMeta}}},
		{name: "errored", signature: signature, payer: payer, ledger: &fakeLedger{txs: []*solana.ParsedTransaction{failed}}},
		{name: "underpaid", signature: signature, payer: payer, ledger: &fakeLedger{txs: []*solana.ParsedTransaction{settledTx(usdcMint, transfer("9"))}}},
		{name: "wrong mint", signature: signature, payer: payer, ledger: &fakeLedger{txs: []*solana.ParsedTransaction{settledTx("So11111111111111111111111111111111111111112", transfer("10"))}}},
		{name: "other payer", signature: signature, payer: recipient, ledger: &fakeLedger{txs: []*solana.ParsedTransaction{settledTx(usdcMint, transfer("10"))}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVerifier(t, tt.ledger)
			proof := models.NewPaymentProof(tt.signature, tt.payer)
			assert.Equal(t, models.PaymentInvalid, v.Verify(context.Background(), proof))
			assert.NotEmpty(t, proof.Reason)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, proof.Reason)
			}
		})
	}
}

func TestVerifier_ShortSignatureSkipsLedger(t *testing.T) {
	ledger := &fakeLedger{}
	v := newVerifier(t, ledger)
	v.Verify(context.Background(), models.NewPaymentProof("short", payer))
	assert.Zero(t, ledger.txCalls)
}

func TestVerifier_ResolvedProofIsNotReverified(t *testing.T) {
	ledger := &fakeLedger{}
	v := newVerifier(t, ledger)

	proof := models.NewPaymentProof(signature, payer)
	proof.Resolve(models.PaymentValid, "")
	assert.Equal(t, models.PaymentValid, v.Verify(context.Background(), proof))
	assert.Zero(t, ledger.txCalls)
}

func TestVerifier_AwaitsUnseenSignature(t *testing.T) {
	ledger := &fakeLedger{txs: []*solana.ParsedTransaction{
		nil,
		settledTx(usdcMint, tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Amount: "10",
		})),
	}}
	awaiter := &fakeAwaiter{}
	v := newVerifier(t, ledger, WithAwaiter(awaiter))
	v.cfg.AwaitTimeout = time.Second

	assert.Equal(t, models.PaymentValid, v.Verify(context.Background(), models.NewPaymentProof(signature, payer)))
	assert.Equal(t, 1, awaiter.calls)
	assert.Equal(t, 2, ledger.txCalls)
}

func TestVerifier_AwaitFailureIsInvalid(t *testing.T) {
	awaiter := &fakeAwaiter{err: solana.ErrTransactionFailed}
	v := newVerifier(t, &fakeLedger{}, WithAwaiter(awaiter))
	v.cfg.AwaitTimeout = time.Second

	proof := models.NewPaymentProof(signature, payer)
	assert.Equal(t, models.PaymentInvalid, v.Verify(context.Background(), proof))
	assert.Contains(t, proof.Reason, "await signature")
}

func TestVerifier_BuildTransferTransaction(t *testing.T) {
	ledger := &fakeLedger{accounts: map[string]bool{payerATA: true, recipientATA: true}}
	v := newVerifier(t, ledger)

	tx, err := v.BuildTransferTransaction(context.Background(), payer, decimal.RequireFromString("0.00001"), "X402 Chat Payment")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tx.BaseUnits)
	assert.Equal(t, payerATA, tx.SourceAccount)
	assert.Equal(t, recipientATA, tx.DestinationAccount)
	assert.Equal(t, "11111111111111111111111111111111", tx.RecentBlockhash)
	assert.NotEmpty(t, tx.Transaction)
}

func TestVerifier_BuildTransferTransaction_MissingAccount(t *testing.T) {
	v := newVerifier(t, &fakeLedger{accounts: map[string]bool{recipientATA: true}})

	_, err := v.BuildTransferTransaction(context.Background(), payer, decimal.RequireFromString("0.00001"), "")
	assert.ErrorIs(t, err, models.ErrAccountMissing)
}

func TestVerifier_BuildTransferTransaction_MissingRecipientIsNotFatal(t *testing.T) {
	v := newVerifier(t, &fakeLedger{accounts: map[string]bool{payerATA: true}})

	_, err := v.BuildTransferTransaction(context.Background(), payer, decimal.RequireFromString("0.00001"), "")
	assert.NoError(t, err)
}

func TestBaseUnits(t *testing.T) {
	n, err := baseUnits(decimal.RequireFromString("0.0000159"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), n)

	_, err = baseUnits(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)
}

func TestVerifier_RejectsTransfersOutsideReplayWindow(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	transfer := func(blockTime *int64) *fakeLedger {
		tx := settledTx(usdcMint, tokenInstruction(t, "transfer", solana.TokenInstructionInfo{
			Source: payerATA, Destination: recipientATA, Amount: "10",
		}))
		tx.BlockTime = blockTime
		return &fakeLedger{txs: []*solana.ParsedTransaction{tx}}
	}
	at := func(ago time.Duration) *int64 {
		ts := now.Add(-ago).Unix()
		return &ts
	}

	tests := []struct {
		name      string
		blockTime *int64
		want      models.PaymentStatus
	}{
		{"recent", at(time.Minute), models.PaymentValid},
		{"just inside", at(719*time.Hour - time.Minute), models.PaymentValid},
		{"older than claims are kept", at(31 * 24 * time.Hour), models.PaymentInvalid},
		{"no block time", nil, models.PaymentInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVerifier(t, transfer(tt.blockTime), WithRegistry(newRegistry(t)))
			v.cfg.MaxAge = MaxTransactionAge(720 * time.Hour)
			v.now = func() time.Time { return now }

			proof := models.NewPaymentProof(signature, payer)
			assert.Equal(t, tt.want, v.Verify(context.Background(), proof), proof.Reason)
		})
	}
}

func TestMaxTransactionAge(t *testing.T) {
	assert.Equal(t, 719*time.Hour, MaxTransactionAge(720*time.Hour))
	assert.Equal(t, 30*time.Minute, MaxTransactionAge(time.Hour))
}
