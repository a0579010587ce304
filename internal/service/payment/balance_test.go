package payment

import (
	"context"
	"testing"

	"X402Chat/internal/service/solana"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceOracle_MissingAccountIsZero(t *testing.T) {
	oracle, err := NewBalanceOracle(&fakeLedger{}, usdcMint)
	require.NoError(t, err)

	bal, err := oracle.GetBalance(context.Background(), payer)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	ok, err := oracle.HasSufficientFunds(context.Background(), payer, decimal.RequireFromString("0.00001"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalanceOracle_ReadsTokenBalance(t *testing.T) {
	ledger := &fakeLedger{
		accounts: map[string]bool{payerATA: true},
		balance:  &solana.UITokenAmount{Amount: "1500000", Decimals: 6},
	}
	oracle, err := NewBalanceOracle(ledger, usdcMint)
	require.NoError(t, err)

	bal, err := oracle.GetBalance(context.Background(), payer)
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())

	ok, err := oracle.HasSufficientFunds(context.Background(), payer, decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = oracle.HasSufficientFunds(context.Background(), payer, decimal.RequireFromString("1.500001"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalanceOracle_InvalidWallet(t *testing.T) {
	oracle, err := NewBalanceOracle(&fakeLedger{}, usdcMint)
	require.NoError(t, err)

	_, err = oracle.GetBalance(context.Background(), "not-a-key")
	assert.Error(t, err)
}
