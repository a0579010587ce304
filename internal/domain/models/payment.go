package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAccountMissing is returned when a wallet has no token account for the settlement mint.
var ErrAccountMissing = errors.New("token account not found")

type PaymentStatus string

const (
	PaymentUnverified PaymentStatus = "unverified"
	PaymentValid      PaymentStatus = "valid"
	PaymentInvalid    PaymentStatus = "invalid"
)

// ReasonSignatureReused marks a proof whose signature already paid for an earlier message.
const ReasonSignatureReused = "payment signature has already been used"

// PaymentProof is a settled transfer claimed by a wallet. Status moves from
// unverified to exactly one terminal value and never changes afterwards.
type PaymentProof struct {
	Signature string
	Payer     string
	Status    PaymentStatus
	Reason    string // why an invalid proof was rejected, for logs only
}

func NewPaymentProof(signature, payer string) *PaymentProof {
	return &PaymentProof{Signature: signature, Payer: payer, Status: PaymentUnverified}
}

// Resolve sets the terminal status once; later calls are ignored.
func (p *PaymentProof) Resolve(status PaymentStatus, reason string) {
	if p.Status != PaymentUnverified {
		return
	}
	p.Status = status
	p.Reason = reason
}

// SignatureClaim records which wallet first spent a payment signature.
type SignatureClaim struct {
	Payer     string    `json:"payer"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// PaymentTerms is what a caller must pay per message.
type PaymentTerms struct {
	Amount    decimal.Decimal
	Currency  string
	Recipient string
	Memo      string
}

// TransferTransaction is an unsigned, wire-encoded transfer ready for a wallet to sign.
type TransferTransaction struct {
	Transaction        string          `json:"transaction"` // base64
	Payer              string          `json:"payer"`
	Recipient          string          `json:"recipient"`
	SourceAccount      string          `json:"sourceAccount"`
	DestinationAccount string          `json:"destinationAccount"`
	Amount             decimal.Decimal `json:"amount"`
	BaseUnits          uint64          `json:"baseUnits"`
	Memo               string          `json:"memo,omitempty"`
	RecentBlockhash    string          `json:"recentBlockhash"`
}
