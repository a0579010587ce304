package models

import "fmt"

// ErrorKind classifies a gateway failure; the transport maps it to a status code.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindMissingWallet
	KindPaymentRequired
	KindPaymentInvalid
	KindRateLimited
	KindInternal
)

// GatewayError is a terminal, user-visible failure of the chat state machine.
type GatewayError struct {
	Kind    ErrorKind
	Message string
	Details string
	Terms   *PaymentTerms // set for payment failures
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

const (
	MsgMessageRequired    = "Message is required"
	MsgWalletRequired     = "Wallet address is required for X402 access"
	MsgWalletInvalid      = "Invalid wallet address"
	MsgPaymentRequired    = "Payment required"
	MsgPaymentPrompt      = "Please complete USDC payment to continue the conversation"
	MsgPaymentInvalid     = "Invalid payment signature"
	MsgPaymentRetry       = "Payment verification failed. Please complete a new payment."
	MsgPaymentInvalidInfo = "The provided payment signature could not be verified on the blockchain."
	MsgPaymentReused      = "This payment signature has already been used. Please complete a new payment."
	MsgRateLimited        = "Rate limit exceeded. Please wait before sending more messages."
	MsgBalanceCheckFailed = "Failed to check USDC balance"
	MsgInternal           = "Internal server error"
)
