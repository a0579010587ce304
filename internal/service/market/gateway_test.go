package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls   map[string]int
	err     error
	matches []models.TokenMatch
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}}
}

func (f *fakeProvider) Quote(_ context.Context, coinID string) (*models.CoinQuote, error) {
	f.calls["quote:"+coinID]++
	if f.err != nil {
		return nil, f.err
	}
	return &models.CoinQuote{ID: coinID, Price: 65000, Change24h: 2.5, Volume24h: 3e10, MarketCap: 1.2e12}, nil
}

func (f *fakeProvider) TopGainers(_ context.Context, limit int) ([]models.MarketCoin, error) {
	f.calls["gainers"]++
	if f.err != nil {
		return nil, f.err
	}
	return make([]models.MarketCoin, limit), nil
}

func (f *fakeProvider) TopCoins(_ context.Context, limit int) ([]models.MarketCoin, error) {
	f.calls["coins"]++
	if f.err != nil {
		return nil, f.err
	}
	return make([]models.MarketCoin, limit), nil
}

func (f *fakeProvider) Trends(_ context.Context, limit int) (*models.MarketTrends, error) {
	f.calls["trends"]++
	if f.err != nil {
		return nil, f.err
	}
	return &models.MarketTrends{Trending: make([]models.TrendingCoin, limit)}, nil
}

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) ([]models.TokenMatch, error) {
	f.calls["search"]++
	return f.matches, f.err
}

func TestGateway_FetchPerIntent(t *testing.T) {
	p := newFakeProvider()
	g := NewGateway(p)
	ctx := context.Background()

	snap, ok := g.Fetch(ctx, models.Classification{Intent: models.IntentSolanaPrice})
	require.True(t, ok)
	assert.Equal(t, "Solana", snap.Quote.Name)
	assert.Equal(t, "SOL", snap.Quote.Symbol)
	assert.Equal(t, 1, p.calls["quote:solana"])

	snap, ok = g.Fetch(ctx, models.Classification{Intent: models.IntentTopGainers})
	require.True(t, ok)
	assert.Len(t, snap.Coins, TopGainersLimit)

	snap, ok = g.Fetch(ctx, models.Classification{Intent: models.IntentTopCoins})
	require.True(t, ok)
	assert.Len(t, snap.Coins, TopCoinsLimit)

	snap, ok = g.Fetch(ctx, models.Classification{Intent: models.IntentMarketTrends})
	require.True(t, ok)
	assert.Len(t, snap.Trends.Trending, TrendingLimit)
}

func TestGateway_UpstreamFailureIsAbsent(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("503")
	g := NewGateway(p)

	_, ok := g.Fetch(context.Background(), models.Classification{Intent: models.IntentBitcoinPrice})
	assert.False(t, ok)
}

func TestGateway_GenericIsNotMarketData(t *testing.T) {
	p := newFakeProvider()
	_, ok := NewGateway(p).Fetch(context.Background(), models.Classification{Intent: models.IntentGeneric})
	assert.False(t, ok)
	assert.Empty(t, p.calls)
}

func TestGateway_CachesSnapshots(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()

	p := newFakeProvider()
	g := NewGateway(p, WithCache(mc, 30*time.Second))
	ctx := context.Background()

	first, ok := g.Fetch(ctx, models.Classification{Intent: models.IntentBitcoinPrice})
	require.True(t, ok)
	second, ok := g.Fetch(ctx, models.Classification{Intent: models.IntentBitcoinPrice})
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.calls["quote:bitcoin"])
}

func TestGateway_TokenSearchUsesClassifiedMatches(t *testing.T) {
	p := newFakeProvider()
	g := NewGateway(p)
	matches := []models.TokenMatch{{ID: "bonk"}}

	snap, ok := g.Fetch(context.Background(), models.Classification{Intent: models.IntentTokenSearch, Query: "bonk", Matches: matches})
	require.True(t, ok)
	assert.Equal(t, matches, snap.Matches)
	assert.Equal(t, "bonk", snap.Query)
	assert.Zero(t, p.calls["search"])
}

func TestGateway_SearchTokensCachesByLowerQuery(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()

	p := newFakeProvider()
	p.matches = []models.TokenMatch{{ID: "bonk", Name: "Bonk", Symbol: "BONK", MarketCapRank: 60}}
	g := NewGateway(p, WithCache(mc, time.Minute))

	got, err := g.SearchTokens(context.Background(), "BONK")
	require.NoError(t, err)
	assert.Equal(t, p.matches, got)

	got, err = g.SearchTokens(context.Background(), "bonk")
	require.NoError(t, err)
	assert.Equal(t, p.matches, got)
	assert.Equal(t, 1, p.calls["search"])
}
