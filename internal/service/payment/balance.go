package payment

import (
	"context"
	"fmt"

	"X402Chat/internal/domain/service"
	"X402Chat/internal/service/solana"

	"github.com/shopspring/decimal"
)

var _ service.BalanceOracle = (*BalanceOracle)(nil)

// BalanceOracle reads settlement-asset balances from the ledger.
type BalanceOracle struct {
	ledger Ledger
	mint   solana.PublicKey
}

func NewBalanceOracle(ledger Ledger, mint string) (*BalanceOracle, error) {
	pk, err := solana.ParsePublicKey(mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	return &BalanceOracle{ledger: ledger, mint: pk}, nil
}

// GetBalance returns zero when the wallet has no token account for the mint.
func (b *BalanceOracle) GetBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	owner, err := solana.ParsePublicKey(wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet: %w", err)
	}
	ata, err := solana.AssociatedTokenAddress(owner, b.mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token account: %w", err)
	}

	info, err := b.ledger.GetAccountInfo(ctx, ata.String(), solana.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token account: %w", err)
	}
	if info == nil {
		return decimal.Zero, nil
	}

	bal, err := b.ledger.GetTokenAccountBalance(ctx, ata.String(), solana.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token balance: %w", err)
	}
	raw, err := decimal.NewFromString(bal.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token balance %q: %w", bal.Amount, err)
	}
	return raw.Shift(-bal.Decimals), nil
}

func (b *BalanceOracle) HasSufficientFunds(ctx context.Context, wallet string, required decimal.Decimal) (bool, error) {
	bal, err := b.GetBalance(ctx, wallet)
	if err != nil {
		return false, err
	}
	return bal.GreaterThanOrEqual(required), nil
}
