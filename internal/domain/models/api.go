package models

import "time"

// HistoryTurnBody is one conversation turn as sent by the browser.
type HistoryTurnBody struct {
	Role      string `json:"role" validate:"omitempty,oneof=user assistant error"`
	Content   string `json:"content" validate:"max=8000"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatRequestBody is the JSON body of POST /api/x402-chatbot. Message and
// wallet presence are checked by the gateway so the error texts stay exact.
type ChatRequestBody struct {
	Message             string            `json:"message"`
	WalletAddress       string            `json:"walletAddress"`
	PaymentSignature    string            `json:"paymentSignature"`
	ConversationHistory []HistoryTurnBody `json:"conversationHistory" validate:"omitempty,max=200,dive"`
	CheckBalance        bool              `json:"checkBalance"`
}

// ToChatRequest converts the body; timestamps that do not parse are left zero.
func (b ChatRequestBody) ToChatRequest() ChatRequest {
	history := make([]ConversationTurn, 0, len(b.ConversationHistory))
	for _, t := range b.ConversationHistory {
		turn := ConversationTurn{Role: TurnRole(t.Role), Content: t.Content}
		if ts, err := time.Parse(time.RFC3339Nano, t.Timestamp); err == nil {
			turn.Timestamp = ts
		}
		history = append(history, turn)
	}
	return ChatRequest{
		Message:          b.Message,
		WalletAddress:    b.WalletAddress,
		PaymentSignature: b.PaymentSignature,
		History:          history,
		CheckBalance:     b.CheckBalance,
	}
}

type ChatResponseBody struct {
	Message         string  `json:"message"`
	PaymentVerified bool    `json:"paymentVerified"`
	Cost            float64 `json:"cost"`
	Currency        string  `json:"currency"`
}

type BalanceResponseBody struct {
	Balance         float64 `json:"balance"`
	SufficientFunds bool    `json:"sufficientFunds"`
	RequiredAmount  float64 `json:"requiredAmount"`
}

// TransactionRequestBody asks for an unsigned payment transfer.
type TransactionRequestBody struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
	Memo          string `json:"memo" validate:"omitempty,max=180"`
}

// UsageQuery is the query string of GET /api/x402-chatbot/usage.
type UsageQuery struct {
	WalletAddress string `query:"walletAddress" json:"walletAddress" validate:"required"`
	Hours         int    `query:"hours" json:"hours" default:"24" validate:"min=1,max=720"`
}

type UsageResponseBody struct {
	WalletAddress string    `json:"walletAddress"`
	PaidMessages  int64     `json:"paidMessages"`
	Since         time.Time `json:"since"`
	RateLimit     int64     `json:"rateLimit"`
	RateRemaining int64     `json:"rateRemaining"`
}

type HealthResponseBody struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	Components map[string]string `json:"components,omitempty"`
}
