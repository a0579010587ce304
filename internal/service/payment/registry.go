package payment

import (
	"context"
	"errors"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	"X402Chat/pkg/cache"
)

var _ repository.SignatureRegistry = (*SignatureRegistry)(nil)

// claimSweepInterval is how often the in-process store drops expired claims.
const claimSweepInterval = time.Minute

// SignatureRegistry remembers accepted signatures for ttl so a settled
// transfer pays for exactly one message. The store must only forget a claim
// when its ttl expires; a size-bounded LRU would let signatures pay twice.
type SignatureRegistry struct {
	cache cache.Service
	ttl   time.Duration
	now   func() time.Time
	owned bool
}

// NewSignatureRegistry keeps claims in c, which the caller owns.
func NewSignatureRegistry(c cache.Service, ttl time.Duration) *SignatureRegistry {
	return &SignatureRegistry{cache: c, ttl: ttl, now: time.Now}
}

// NewMemorySignatureRegistry keeps claims in a dedicated, unbounded
// in-process store that evicts by expiry only.
func NewMemorySignatureRegistry(ttl time.Duration) *SignatureRegistry {
	store := cache.NewMemoryCache(
		cache.WithMemoryMaxEntries(0),
		cache.WithMemoryCleanup(claimSweepInterval),
	)
	r := NewSignatureRegistry(store, ttl)
	r.owned = true
	return r
}

func (r *SignatureRegistry) Claim(ctx context.Context, signature, payer string) (bool, error) {
	claim := models.SignatureClaim{Payer: payer, ClaimedAt: r.now().UTC()}
	return r.cache.SetIfAbsent(ctx, claimKey(signature), claim, r.ttl)
}

func (r *SignatureRegistry) Owner(ctx context.Context, signature string) (models.SignatureClaim, bool, error) {
	var claim models.SignatureClaim
	err := r.cache.Get(ctx, claimKey(signature), &claim)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.SignatureClaim{}, false, nil
	}
	if err != nil {
		return models.SignatureClaim{}, false, err
	}
	return claim, true, nil
}

func claimKey(signature string) string {
	return cache.GenerateKey("payment", "sig", signature)
}

// Close releases the store when the registry created it.
func (r *SignatureRegistry) Close() error {
	if !r.owned {
		return nil
	}
	return r.cache.Close()
}
