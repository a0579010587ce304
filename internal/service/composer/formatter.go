package composer

import (
	"fmt"
	"math"
	"strings"

	"X402Chat/internal/domain/models"
	"X402Chat/pkg/util"
)

const (
	AnalysisSuffix = "*Premium crypto analysis via X402 protocol*"
	SearchSuffix   = "*Premium crypto search via X402 protocol*"

	fallbackText = "Market data fetched successfully."
	noData       = "No data available"
	noTrending   = "No trending data available"
)

// FormatSnapshot renders a snapshot without any external calls.
func FormatSnapshot(s models.MarketSnapshot) string {
	switch s.Intent {
	case models.IntentBitcoinPrice:
		if s.Quote != nil {
			return formatBitcoin(s.Quote)
		}
	case models.IntentEthereumPrice:
		if s.Quote != nil {
			return formatEthereum(s.Quote)
		}
	case models.IntentSolanaPrice:
		if s.Quote != nil {
			return formatSolana(s.Quote)
		}
	case models.IntentTopGainers:
		return formatTopGainers(s.Coins)
	case models.IntentTopCoins:
		return formatTopCoins(s.Coins)
	case models.IntentMarketTrends:
		if s.Trends != nil {
			return formatTrends(s.Trends)
		}
	case models.IntentTokenSearch:
		return formatSearch(s.Query, s.Matches)
	}
	return fallbackText
}

func pct(v float64) string {
	return util.FormatFixed(v, 2)
}

func quoteData(name, symbol string, q *models.CoinQuote) string {
	return fmt.Sprintf("%s (%s) Real-Time Data:\n- Price: $%s\n- 24h Change: %s%%\n- 24h Volume: $%s\n- Market Cap: $%s",
		name, symbol,
		util.FormatNumber(q.Price),
		pct(q.Change24h),
		util.FormatNumber(q.Volume24h),
		util.FormatNumber(q.MarketCap))
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func formatBitcoin(q *models.CoinQuote) string {
	return fmt.Sprintf("📈 %s\n\n🚀 Analysis:\nBitcoin shows %s with %s%% movement in the last 24 hours.\n\n%s",
		quoteData("Bitcoin", "BTC", q),
		pick(q.Change24h > 0, "positive momentum", "consolidation"),
		pct(math.Abs(q.Change24h)),
		AnalysisSuffix)
}

func formatEthereum(q *models.CoinQuote) string {
	return fmt.Sprintf("📈 %s\n\n🚀 Analysis:\nEthereum shows %s with %s%% movement.\n\n%s",
		quoteData("Ethereum", "ETH", q),
		pick(q.Change24h > 0, "bullish momentum", "market correction"),
		pct(math.Abs(q.Change24h)),
		AnalysisSuffix)
}

func formatSolana(q *models.CoinQuote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 %s\n\n", quoteData("Solana", "SOL", q))
	fmt.Fprintf(&b, "🚀 Analysis:\nSolana demonstrates %s with %s%% change in the last 24 hours.\n\n",
		pick(q.Change24h > 0, "strong performance", "consolidation phase"),
		pct(math.Abs(q.Change24h)))
	b.WriteString("💡 Key Insights:\n")
	fmt.Fprintf(&b, "1. Price Action: %s\n",
		pick(q.Change24h > 0, "Positive momentum suggests growing confidence", "Price correction may present buying opportunities"))
	fmt.Fprintf(&b, "2. Volume Analysis: $%s in 24h trading volume indicates %s market activity\n",
		util.FormatNumber(q.Volume24h), pick(q.Volume24h > 1e9, "high", "moderate"))
	fmt.Fprintf(&b, "3. Market Position: With $%s market cap, SOL maintains strong market presence\n\n",
		util.FormatNumber(q.MarketCap))
	b.WriteString(AnalysisSuffix)
	return b.String()
}

func formatTopGainers(coins []models.MarketCoin) string {
	lines := make([]string, 0, len(coins))
	for i, c := range coins {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) - 📈 %s%% ($%s)",
			i+1, c.Name, strings.ToUpper(c.Symbol), pct(c.PriceChange24h), util.FormatFixed(c.CurrentPrice, 6)))
	}
	return fmt.Sprintf("🚀 Top 10 Crypto Gainers (24h)\n\n%s\n\n%s", joinOr(lines, noData), AnalysisSuffix)
}

func formatTopCoins(coins []models.MarketCoin) string {
	lines := make([]string, 0, len(coins))
	for i, c := range coins {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) - $%s (%s%%)",
			i+1, c.Name, strings.ToUpper(c.Symbol), util.FormatNumber(c.CurrentPrice), pct(c.PriceChange24h)))
	}
	return fmt.Sprintf("🏆 Top 15 Cryptocurrencies by Market Cap\n\n%s\n\n%s", joinOr(lines, noData), AnalysisSuffix)
}

func formatTrends(t *models.MarketTrends) string {
	lines := make([]string, 0, len(t.Trending))
	for i, c := range t.Trending {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) - Rank #%s", i+1, c.Name, c.Symbol, rank(c.MarketCapRank)))
	}

	g := t.Global
	var b strings.Builder
	b.WriteString("📊 Cryptocurrency Market Overview\n\nMarket Statistics:\n")
	fmt.Fprintf(&b, "• Total Market Cap: $%s\n", util.FormatNumber(g.TotalMarketCapUSD))
	fmt.Fprintf(&b, "• 24h Market Cap Change: %s%%\n", pct(g.MarketCapChange24h))
	fmt.Fprintf(&b, "• Bitcoin Dominance: %s%%\n", pct(g.BTCDominance))
	fmt.Fprintf(&b, "• Ethereum Dominance: %s%%\n\n", pct(g.ETHDominance))
	fmt.Fprintf(&b, "Top Trending:\n%s\n\n%s", joinOr(lines, noTrending), AnalysisSuffix)
	return b.String()
}

func formatSearch(query string, matches []models.TokenMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d token(s) matching \"%s\":\n\n", len(matches), query)
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, m.Name, strings.ToUpper(m.Symbol))
		fmt.Fprintf(&b, "   - ID: %s\n", m.ID)
		if m.MarketCapRank > 0 {
			fmt.Fprintf(&b, "   - Market Cap Rank: #%d\n", m.MarketCapRank)
		}
		b.WriteString("\n")
	}
	b.WriteString("Would you like detailed analysis for any of these tokens? Just send me the token's contract address!\n\n")
	b.WriteString(SearchSuffix)
	return b.String()
}

func rank(r int) string {
	if r <= 0 {
		return "N/A"
	}
	return fmt.Sprint(r)
}

func joinOr(lines []string, empty string) string {
	if len(lines) == 0 {
		return empty
	}
	return strings.Join(lines, "\n")
}

var unavailable = map[models.Intent]string{
	models.IntentBitcoinPrice:  "Bitcoin price",
	models.IntentTopGainers:    "top gainers",
	models.IntentMarketTrends:  "market trends",
	models.IntentEthereumPrice: "Ethereum price",
	models.IntentSolanaPrice:   "Solana price",
	models.IntentTopCoins:      "top coins",
}

// UnavailableText is shown under 200 when the upstream could not serve intent.
func UnavailableText(intent models.Intent) string {
	if what, ok := unavailable[intent]; ok {
		return fmt.Sprintf("I'm currently unable to fetch %s data. Please try again in a moment.", what)
	}
	if intent == models.IntentTokenSearch {
		return "I'm experiencing issues fetching real-time market data. Please try again in a moment."
	}
	return "I detected a market data request but couldn't process it. Please try rephrasing your question."
}
