package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"X402Chat/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	matches []models.TokenMatch
	err     error
	queries []string
}

func (f *fakeSearcher) SearchTokens(_ context.Context, query string) ([]models.TokenMatch, error) {
	f.queries = append(f.queries, query)
	return f.matches, f.err
}

func TestRouter_KeywordRules(t *testing.T) {
	tests := []struct {
		message string
		want    models.Intent
	}{
		{"What's the bitcoin price today?", models.IntentBitcoinPrice},
		{"Bitcoin current state", models.IntentBitcoinPrice},
		{"top gainers this week", models.IntentTopGainers},
		{"Best performers?", models.IntentTopGainers},
		{"market overview please", models.IntentMarketTrends},
		{"What is the market sentiment", models.IntentMarketTrends},
		{"ETH price", models.IntentEthereumPrice},
		{"price of ethereum", models.IntentEthereumPrice},
		{"SOL price now", models.IntentSolanaPrice},
		{"largest coins", models.IntentTopCoins},
		{"top crypto by market cap", models.IntentTopCoins},
		// ordering: bitcoin rule precedes top gainers
		{"bitcoin price vs top gainers", models.IntentBitcoinPrice},
		// ordering: ethereum precedes solana
		{"price of eth and sol", models.IntentEthereumPrice},
	}

	r := NewRouter(nil)
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(context.Background(), tt.message).Intent)
		})
	}
}

func TestRules_Independent(t *testing.T) {
	byName := map[string]Rule{}
	for _, r := range Rules {
		byName[r.Name] = r
	}
	require.Len(t, byName, 6)

	assert.True(t, byName["bitcoin price"].Match("bitcoin current"))
	assert.False(t, byName["bitcoin price"].Match("bitcoin history"))
	assert.True(t, byName["top coins"].Match("largest market cap"))
	assert.False(t, byName["market trends"].Match("market cap"))
}

func TestRouter_TokenSearchFallback(t *testing.T) {
	s := &fakeSearcher{matches: []models.TokenMatch{{ID: "bonk", Name: "Bonk", Symbol: "bonk", MarketCapRank: 60}}}
	r := NewRouter(s)

	c := r.Classify(context.Background(), "  bonk  ")
	assert.Equal(t, models.IntentTokenSearch, c.Intent)
	assert.Equal(t, "bonk", c.Query)
	assert.Len(t, c.Matches, 1)
	assert.Equal(t, []string{"bonk"}, s.queries)
}

func TestRouter_GenericWhenSearchEmptyOrFails(t *testing.T) {
	r := NewRouter(&fakeSearcher{})
	assert.Equal(t, models.IntentGeneric, r.Classify(context.Background(), "tell me a joke").Intent)

	r = NewRouter(&fakeSearcher{err: errors.New("upstream down")})
	assert.Equal(t, models.IntentGeneric, r.Classify(context.Background(), "tell me a joke").Intent)
}

func TestRouter_RuleMatchSkipsSearch(t *testing.T) {
	s := &fakeSearcher{}
	NewRouter(s).Classify(context.Background(), "bitcoin price")
	assert.Empty(t, s.queries)
}

func TestRouter_CustomRules(t *testing.T) {
	rules := []Rule{{
		Name:   "doge",
		Intent: models.IntentTopCoins,
		Match:  func(m string) bool { return strings.Contains(m, "doge") },
	}}
	r := NewRouter(nil, WithRules(rules))
	assert.Equal(t, models.IntentTopCoins, r.Classify(context.Background(), "DOGE?").Intent)
	assert.Equal(t, models.IntentGeneric, r.Classify(context.Background(), "bitcoin price").Intent)
}
