package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Quote(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get(apiKeyHeader)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":65000,"usd_market_cap":1200000000000,"usd_24h_vol":30000000000,"usd_24h_change":2.5}}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithAPIKey("demo-key"))
	q, err := c.Quote(context.Background(), "bitcoin")
	require.NoError(t, err)

	assert.Equal(t, 65000.0, q.Price)
	assert.Equal(t, 2.5, q.Change24h)
	assert.Equal(t, 3e10, q.Volume24h)
	assert.Equal(t, 1.2e12, q.MarketCap)
	assert.Contains(t, gotQuery, "ids=bitcoin")
	assert.Contains(t, gotQuery, "include_24hr_change=true")
	assert.Equal(t, "demo-key", gotKey)
}

func TestClient_QuoteMissingCoin(t *testing.T) {
	srv := newServer(t, map[string]string{"/simple/price": `{}`})
	_, err := New(WithBaseURL(srv.URL)).Quote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClient_QuoteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).Quote(context.Background(), "bitcoin")
	assert.Error(t, err)
}

func TestClient_TopGainersKeepsProviderOrder(t *testing.T) {
	var order, perPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = r.URL.Query().Get("order")
		perPage = r.URL.Query().Get("per_page")
		_, _ = w.Write([]byte(`[
			{"id":"a","symbol":"aaa","name":"Alpha","current_price":0.5,"market_cap":100,"market_cap_rank":300,"price_change_percentage_24h":45.1},
			{"id":"b","symbol":"bbb","name":"Beta","current_price":2,"market_cap":200,"market_cap_rank":null,"price_change_percentage_24h":null}
		]`))
	}))
	defer srv.Close()

	coins, err := New(WithBaseURL(srv.URL)).TopGainers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, "price_change_percentage_24h_desc", order)
	assert.Equal(t, "10", perPage)
	assert.Equal(t, "Alpha", coins[0].Name)
	assert.Equal(t, 45.1, coins[0].PriceChange24h)
	assert.Equal(t, 300, coins[0].MarketCapRank)
	assert.Zero(t, coins[1].MarketCapRank)
}

func TestClient_TopCoinsTruncates(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/coins/markets": `[{"id":"bitcoin"},{"id":"ethereum"},{"id":"tether"}]`,
	})
	coins, err := New(WithBaseURL(srv.URL)).TopCoins(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, coins, 2)
}

func TestClient_Trends(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/global": `{"data":{"active_cryptocurrencies":10000,"total_market_cap":{"usd":2500000000000},
			"market_cap_percentage":{"btc":52.4,"eth":16.9},"market_cap_change_percentage_24h_usd":-1.25}}`,
		"/search/trending": `{"coins":[
			{"item":{"id":"pepe","name":"Pepe","symbol":"PEPE","market_cap_rank":40}},
			{"item":{"id":"new","name":"New","symbol":"NEW","market_cap_rank":null}},
			{"item":{"id":"x","name":"X","symbol":"X","market_cap_rank":1}}
		]}`,
	})

	trends, err := New(WithBaseURL(srv.URL)).Trends(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2.5e12, trends.Global.TotalMarketCapUSD)
	assert.Equal(t, 52.4, trends.Global.BTCDominance)
	assert.Equal(t, -1.25, trends.Global.MarketCapChange24h)
	require.Len(t, trends.Trending, 2)
	assert.Equal(t, "PEPE", trends.Trending[0].Symbol)
	assert.Zero(t, trends.Trending[1].MarketCapRank)
}

func TestClient_TrendsFailsWhenEitherCallFails(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/global": `{"data":{}}`,
	})
	_, err := New(WithBaseURL(srv.URL)).Trends(context.Background(), 7)
	assert.Error(t, err)
}

func TestClient_Search(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"coins":[
			{"id":"bonk","name":"Bonk","symbol":"BONK","market_cap_rank":60},
			{"id":"b2","name":"B2","symbol":"B2"},{"id":"b3"},{"id":"b4"},{"id":"b5"},{"id":"b6"}
		]}`))
	}))
	defer srv.Close()

	matches, err := New(WithBaseURL(srv.URL)).Search(context.Background(), "bonk inu", 5)
	require.NoError(t, err)
	assert.Equal(t, "bonk inu", query)
	require.Len(t, matches, 5)
	assert.Equal(t, 60, matches[0].MarketCapRank)
}

func TestClient_Throttle(t *testing.T) {
	srv := newServer(t, map[string]string{"/search": `{"coins":[]}`})
	c := New(WithBaseURL(srv.URL), WithRequestsPerMinute(1))

	_, err := c.Search(context.Background(), "x", 5)
	require.NoError(t, err)

	// the bucket is empty; a cancelled context cannot wait for the next token
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Search(ctx, "x", 5)
	assert.Error(t, err)
}
