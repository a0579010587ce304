package models

// CoinQuote is a single-asset quote in USD.
type CoinQuote struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"` // percent
	Volume24h float64 `json:"volume_24h"`
	MarketCap float64 `json:"market_cap"`
}

// MarketCoin is one row of a ranked market listing.
type MarketCoin struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	CurrentPrice   float64 `json:"current_price"`
	PriceChange24h float64 `json:"price_change_24h"` // percent
	MarketCap      float64 `json:"market_cap"`
	MarketCapRank  int     `json:"market_cap_rank"`
}

type GlobalMarket struct {
	TotalMarketCapUSD      float64 `json:"total_market_cap_usd"`
	MarketCapChange24h     float64 `json:"market_cap_change_24h"` // percent
	BTCDominance           float64 `json:"btc_dominance"`
	ETHDominance           float64 `json:"eth_dominance"`
	ActiveCryptocurrencies int     `json:"active_cryptocurrencies"`
}

type TrendingCoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"` // 0 when unranked
}

type MarketTrends struct {
	Global   GlobalMarket   `json:"global"`
	Trending []TrendingCoin `json:"trending"`
}

type TokenMatch struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"` // 0 when unranked
}

// MarketSnapshot carries the payload for exactly one market-data intent.
type MarketSnapshot struct {
	Intent  Intent        `json:"intent"`
	Query   string        `json:"query,omitempty"`
	Quote   *CoinQuote    `json:"quote,omitempty"`
	Coins   []MarketCoin  `json:"coins,omitempty"`
	Trends  *MarketTrends `json:"trends,omitempty"`
	Matches []TokenMatch  `json:"matches,omitempty"`
}
