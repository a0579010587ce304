package composer

import (
	"fmt"
	"strings"

	"X402Chat/internal/domain/models"
	"X402Chat/pkg/util"
)

// topicWords keep a message in scope for the generic assistant.
var topicWords = []string{
	"crypto", "bitcoin", "blockchain", "defi", "solana", "ethereum", "trading", "token",
	"nft", "web3", "payment", "usdc", "price", "market", "coin",
}

type cannedKind int

const (
	cannedDefault cannedKind = iota
	cannedHelp
	cannedPayment
	cannedRedirect
)

// offTopic reports a message outside the crypto domain. Help phrasing alone
// does not bring a message into scope.
func offTopic(lower string) bool {
	return !util.ContainsAny(lower, topicWords...) && !util.ContainsAny(lower, "402")
}

// classifyConversation picks the canned reply used when no provider answers.
func classifyConversation(lower string) cannedKind {
	switch {
	case util.ContainsAny(lower, "help", "what can you do"):
		return cannedHelp
	case util.ContainsAny(lower, "payment", "402", "usdc"):
		return cannedPayment
	case !util.ContainsAny(lower, topicWords...):
		return cannedRedirect
	}
	return cannedDefault
}

const analystPersona = `You are X402 Agent, a premium cryptocurrency specialist. Provide detailed, professional crypto analysis with actionable insights. Use emojis and clear formatting. Always mention this is "Premium crypto analysis via X402 protocol" at the end.`

func conversationPersona(terms models.PaymentTerms) string {
	return fmt.Sprintf(`You are X402 Agent, a premium cryptocurrency and blockchain specialist. You ONLY respond to cryptocurrency, blockchain, DeFi, Web3, and trading-related questions.

CORE EXPERTISE:
• Cryptocurrency trading strategies and market analysis
• Technical analysis and chart reading
• DeFi protocols (Uniswap, Compound, Aave, etc.)
• Blockchain development (Solana, Ethereum)
• Smart contract development (Solidity, Anchor/Rust)
• NFT markets and minting strategies
• Yield farming and liquidity mining
• Cross-chain technologies and bridges
• Crypto portfolio management
• Risk assessment and trading psychology

PAYMENT CONTEXT:
• You operate on the X402 payment protocol
• Users pay %s %s per message for premium crypto expertise
• Payments are verified on Solana blockchain
• You provide high-value cryptocurrency insights

RESPONSE GUIDELINES:
• ONLY answer cryptocurrency, blockchain, DeFi, Web3, and trading questions
• If asked about non-crypto topics, politely redirect to crypto-related subjects
• Provide actionable trading insights and analysis
• Include risk warnings where appropriate
• Be professional but accessible to both beginners and experts
• Reference current market conditions when relevant

IMPORTANT: If users ask about non-cryptocurrency topics (like general programming, cooking, sports, etc.), respond with: "I specialize exclusively in cryptocurrency and blockchain topics. Please ask me about crypto trading, DeFi, blockchain development, or Web3 to get the most value from your X402 payment!"

You are the premium crypto expert users pay for - deliver exceptional value.`, terms.Amount.String(), terms.Currency)
}

// quotePrompt supplies quote data to the generative tier.
func quotePrompt(s models.MarketSnapshot) string {
	q := s.Quote
	var ask string
	switch s.Intent {
	case models.IntentBitcoinPrice:
		ask = "Please provide an engaging analysis of Bitcoin's current price performance with actionable trading insights."
	case models.IntentSolanaPrice:
		ask = "Please provide detailed analysis of Solana's current price performance with key insights and actionable recommendations."
	default:
		ask = "Please provide comprehensive analysis of Ethereum's current market performance."
	}
	return fmt.Sprintf("Current %s\n\n%s", quoteData(q.Name, q.Symbol, q), ask)
}

func cannedReply(kind cannedKind, terms models.PaymentTerms) string {
	switch kind {
	case cannedHelp:
		return `🤖 X402 Agent - Your Premium Crypto Assistant

I can help you with:

📈 Cryptocurrency & Trading:
• Real-time price analysis and market trends
• Trading strategies and technical analysis
• Portfolio optimization advice
• Risk assessment and management

🔗 Blockchain & DeFi:
• Smart contract development (Solana, Ethereum)
• DeFi protocol integration and strategies
• Yield farming and liquidity mining
• Cross-chain bridge technologies

⚡ Web3 Development:
• Solana program development with Anchor
• Ethereum smart contracts with Solidity
• NFT marketplaces and minting
• HTTP 402 payment implementation

💡 Ask me anything about crypto, blockchain, or Web3 development!

*Premium crypto expertise powered by X402 payment protocol*`
	case cannedPayment:
		price := terms.Amount.String() + " " + terms.Currency
		var b strings.Builder
		b.WriteString("💰 X402 Premium Crypto Payment System\n\n")
		b.WriteString("The HTTP 402 protocol enables:\n")
		b.WriteString("• Pay-per-use premium crypto analysis\n")
		fmt.Fprintf(&b, "• Micro-transactions (%s per message)\n", price)
		b.WriteString("• Instant blockchain verification on Solana\n")
		b.WriteString("• Access to advanced crypto insights\n\n")
		b.WriteString("How it works:\n")
		fmt.Fprintf(&b, "1. Send %s payment via Phantom wallet\n", terms.Currency)
		b.WriteString("2. Receive payment proof/signature\n")
		b.WriteString("3. Access premium crypto AI features\n")
		b.WriteString("4. Real-time verification on Solana mainnet\n\n")
		fmt.Fprintf(&b, "Recipient Address: %s\n\n", terms.Recipient)
		fmt.Fprintf(&b, "*Each message costs %s - Premium crypto expertise*", price)
		return b.String()
	case cannedRedirect:
		return `I'm X402 Agent, your premium cryptocurrency specialist! 🚀

I focus exclusively on crypto-related topics:
• Cryptocurrency trading and analysis
• Blockchain technology and development
• DeFi protocols and strategies
• Web3 and smart contracts
• Market trends and price analysis

Please ask me about cryptocurrency, blockchain, or Web3 topics to get the most value from your X402 payment!

*Powered by X402 micro-payment protocol - Premium crypto expertise*`
	default:
		return `I'm X402 Agent, your premium crypto specialist! 🚀

I specialize in:
• Cryptocurrency trading and market analysis
• Blockchain development (Solana, Ethereum)
• DeFi protocols and yield strategies
• Web3 integration and smart contracts
• Real-time market insights

What crypto question can I help you with today?

*Powered by X402 micro-payment protocol*`
	}
}
