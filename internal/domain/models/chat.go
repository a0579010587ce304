package models

import "time"

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleError     TurnRole = "error"
)

// ConversationTurn is caller-supplied history; the gateway only reads it.
type ConversationTurn struct {
	Role      TurnRole
	Content   string
	Timestamp time.Time
}

// ChatRequest is one inbound message after transport decoding.
type ChatRequest struct {
	Message          string
	WalletAddress    string
	PaymentSignature string
	History          []ConversationTurn
	CheckBalance     bool
}

// ReplyTier names the component that produced a reply.
type ReplyTier string

const (
	TierGenerative    ReplyTier = "generative"
	TierDeterministic ReplyTier = "deterministic"
	TierCanned        ReplyTier = "canned"
	TierUnavailable   ReplyTier = "unavailable"
)

// ChatReply is the successful outcome of a paid message.
type ChatReply struct {
	Message string
	Intent  Intent
	Tier    ReplyTier
	Terms   PaymentTerms
}

// Reply is a composed message and the tier that produced it.
type Reply struct {
	Text string
	Tier ReplyTier
}

// BalanceReply answers the balance side channel.
type BalanceReply struct {
	Balance         float64
	SufficientFunds bool
	RequiredAmount  float64
}

// ChatOutcome is what the gateway produced for one request: a balance answer
// for the side channel, or a paid reply.
type ChatOutcome struct {
	Balance *BalanceReply
	Reply   *ChatReply
}
