package models

// Intent is the routing decision for a paid message.
type Intent string

const (
	IntentBitcoinPrice  Intent = "bitcoin_price"
	IntentTopGainers    Intent = "top_gainers"
	IntentMarketTrends  Intent = "market_trends"
	IntentEthereumPrice Intent = "ethereum_price"
	IntentSolanaPrice   Intent = "solana_price"
	IntentTopCoins      Intent = "top_coins"
	IntentTokenSearch   Intent = "token_search"
	IntentGeneric       Intent = "generic"
)

// IsMarketData reports whether the intent is served from the market data provider.
func (i Intent) IsMarketData() bool {
	switch i {
	case IntentBitcoinPrice, IntentEthereumPrice, IntentSolanaPrice,
		IntentTopGainers, IntentTopCoins, IntentMarketTrends, IntentTokenSearch:
		return true
	}
	return false
}

// IsQuote reports whether the intent asks for a single asset quote.
func (i Intent) IsQuote() bool {
	return i == IntentBitcoinPrice || i == IntentEthereumPrice || i == IntentSolanaPrice
}

// Classification is the router's output for one message.
type Classification struct {
	Intent  Intent
	Query   string       // trimmed message for token search
	Matches []TokenMatch // populated for IntentTokenSearch
}
