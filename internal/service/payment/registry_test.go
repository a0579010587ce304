package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRegistry_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, ok, err := r.Owner(ctx, signature)
	require.NoError(t, err)
	assert.False(t, ok)

	won, err := r.Claim(ctx, signature, payer)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.Claim(ctx, signature, "another-wallet")
	require.NoError(t, err)
	assert.False(t, won)

	claim, ok, err := r.Owner(ctx, signature)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payer, claim.Payer)
	assert.True(t, claim.ClaimedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestMemorySignatureRegistry_KeepsEveryClaimUntilExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySignatureRegistry(time.Hour)
	t.Cleanup(func() { _ = r.Close() })

	won, err := r.Claim(ctx, signature, payer)
	require.NoError(t, err)
	require.True(t, won)

	for i := 0; i < 20000; i++ {
		_, err := r.Claim(ctx, fmt.Sprintf("sig-%d", i), payer)
		require.NoError(t, err)
	}

	won, err = r.Claim(ctx, signature, payer)
	require.NoError(t, err)
	assert.False(t, won, "an accepted signature must not pay twice")
}
