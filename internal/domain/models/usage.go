package models

import "time"

// UsageEvent records one paid reply for auditing and billing reconciliation.
type UsageEvent struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Signature string    `json:"signature"`
	Intent    Intent    `json:"intent"`
	Tier      ReplyTier `json:"tier"`
	Cost      string    `json:"cost"` // decimal string, e.g. "0.00001"
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// RateWindow is a wallet's message count in its current fixed window.
type RateWindow struct {
	Count int64
	Start time.Time
}

type RateDecision int

const (
	RateAllowed RateDecision = iota
	RateLimited
)
