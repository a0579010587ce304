package coingecko

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	xhttp "X402Chat/pkg/http"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	DefaultTimeout = 8 * time.Second

	apiKeyHeader = "x-cg-demo-api-key"
)

var ErrMalformed = errors.New("coingecko: malformed payload")

var _ repository.MarketDataProvider = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRequestsPerMinute throttles outbound calls; 0 disables throttling.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// Client implements MarketDataProvider against the CoinGecko v3 REST API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	limiter *rate.Limiter
	http    *xhttp.Client
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	httpOpts := []xhttp.ClientOption{xhttp.WithTimeout(c.timeout)}
	if c.apiKey != "" {
		httpOpts = append(httpOpts, xhttp.WithHeader(apiKeyHeader, c.apiKey))
	}
	c.http = xhttp.NewClient(httpOpts...)
	return c
}

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("coingecko throttle: %w", err)
		}
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("coingecko %s: %w", path, err)
	}
	return nil
}

type simplePrice struct {
	USD          *float64 `json:"usd"`
	USDMarketCap float64  `json:"usd_market_cap"`
	USD24hVol    float64  `json:"usd_24h_vol"`
	USD24hChange float64  `json:"usd_24h_change"`
}

// Quote returns the USD price, 24h change, 24h volume and market cap for coinID.
func (c *Client) Quote(ctx context.Context, coinID string) (*models.CoinQuote, error) {
	var res map[string]simplePrice
	err := c.get(ctx, "/simple/price", map[string][]string{
		"ids":                 {coinID},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
		"include_24hr_vol":    {"true"},
		"include_market_cap":  {"true"},
	}, &res)
	if err != nil {
		return nil, err
	}

	p, ok := res[coinID]
	if !ok || p.USD == nil {
		return nil, fmt.Errorf("%w: no usd price for %s", ErrMalformed, coinID)
	}
	return &models.CoinQuote{
		ID:        coinID,
		Price:     *p.USD,
		Change24h: p.USD24hChange,
		Volume24h: p.USD24hVol,
		MarketCap: p.USDMarketCap,
	}, nil
}

type marketCoin struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             float64  `json:"current_price"`
	MarketCap                float64  `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

func (c *Client) markets(ctx context.Context, order string, limit int) ([]models.MarketCoin, error) {
	var res []marketCoin
	err := c.get(ctx, "/coins/markets", map[string][]string{
		"vs_currency":             {"usd"},
		"order":                   {order},
		"per_page":                {strconv.Itoa(limit)},
		"page":                    {"1"},
		"sparkline":               {"false"},
		"price_change_percentage": {"24h"},
	}, &res)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty market listing", ErrMalformed)
	}

	if len(res) > limit {
		res = res[:limit]
	}
	out := make([]models.MarketCoin, 0, len(res))
	for _, m := range res {
		coin := models.MarketCoin{
			ID:           m.ID,
			Symbol:       m.Symbol,
			Name:         m.Name,
			CurrentPrice: m.CurrentPrice,
			MarketCap:    m.MarketCap,
		}
		if m.MarketCapRank != nil {
			coin.MarketCapRank = *m.MarketCapRank
		}
		if m.PriceChangePercentage24h != nil {
			coin.PriceChange24h = *m.PriceChangePercentage24h
		}
		out = append(out, coin)
	}
	return out, nil
}

// TopGainers lists coins ordered by 24h price change, highest first.
func (c *Client) TopGainers(ctx context.Context, limit int) ([]models.MarketCoin, error) {
	return c.markets(ctx, "price_change_percentage_24h_desc", limit)
}

// TopCoins lists coins by market capitalization.
func (c *Client) TopCoins(ctx context.Context, limit int) ([]models.MarketCoin, error) {
	return c.markets(ctx, "market_cap_desc", limit)
}

type globalResponse struct {
	Data *struct {
		ActiveCryptocurrencies          int                `json:"active_cryptocurrencies"`
		TotalMarketCap                  map[string]float64 `json:"total_market_cap"`
		MarketCapPercentage             map[string]float64 `json:"market_cap_percentage"`
		MarketCapChangePercentage24hUSD float64            `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

type trendingResponse struct {
	Coins []struct {
		Item searchCoin `json:"item"`
	} `json:"coins"`
}

// Trends fetches the global market summary and trending coins concurrently.
// Either call failing fails the whole result.
func (c *Client) Trends(ctx context.Context, trendingLimit int) (*models.MarketTrends, error) {
	var (
		global   globalResponse
		trending trendingResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, "/global", nil, &global)
	})
	g.Go(func() error {
		return c.get(gctx, "/search/trending", nil, &trending)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if global.Data == nil {
		return nil, fmt.Errorf("%w: global data missing", ErrMalformed)
	}

	out := &models.MarketTrends{
		Global: models.GlobalMarket{
			TotalMarketCapUSD:      global.Data.TotalMarketCap["usd"],
			MarketCapChange24h:     global.Data.MarketCapChangePercentage24hUSD,
			BTCDominance:           global.Data.MarketCapPercentage["btc"],
			ETHDominance:           global.Data.MarketCapPercentage["eth"],
			ActiveCryptocurrencies: global.Data.ActiveCryptocurrencies,
		},
	}
	for i, coin := range trending.Coins {
		if i == trendingLimit {
			break
		}
		out.Trending = append(out.Trending, models.TrendingCoin(coin.Item.toMatch()))
	}
	return out, nil
}

type searchCoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

func (s searchCoin) toMatch() models.TokenMatch {
	m := models.TokenMatch{ID: s.ID, Name: s.Name, Symbol: s.Symbol}
	if s.MarketCapRank != nil {
		m.MarketCapRank = *s.MarketCapRank
	}
	return m
}

type searchResponse struct {
	Coins []searchCoin `json:"coins"`
}

// Search finds coins by name or symbol, returning at most limit matches.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.TokenMatch, error) {
	var res searchResponse
	if err := c.get(ctx, "/search", map[string][]string{"query": {query}}, &res); err != nil {
		return nil, err
	}

	out := make([]models.TokenMatch, 0, limit)
	for _, coin := range res.Coins {
		if len(out) == limit {
			break
		}
		out = append(out, coin.toMatch())
	}
	return out, nil
}
