package solana

import "encoding/json"

// Commitment levels accepted by the RPC.
const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// AccountInfo is the subset of getAccountInfo the gateway needs.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
}

// UITokenAmount is a token amount as returned by the RPC.
type UITokenAmount struct {
	Amount         string   `json:"amount"` // base units
	Decimals       int32    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// ParsedTransaction is getTransaction with jsonParsed encoding.
type ParsedTransaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction ParsedTxEnvelope `json:"transaction"`
}

type ParsedTxEnvelope struct {
	Signatures []string      `json:"signatures"`
	Message    ParsedMessage `json:"message"`
}

type ParsedMessage struct {
	AccountKeys     []ParsedAccountKey  `json:"accountKeys"`
	Instructions    []ParsedInstruction `json:"instructions"`
	RecentBlockhash string              `json:"recentBlockhash"`
}

type ParsedAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

type TransactionMeta struct {
	Err               interface{}         `json:"err"` // nil on success
	Fee               uint64              `json:"fee"`
	InnerInstructions []InnerInstructions `json:"innerInstructions"`
	PreTokenBalances  []TokenBalance      `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance      `json:"postTokenBalances"`
	LogMessages       []string            `json:"logMessages"`
}

type InnerInstructions struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// ParsedInstruction holds either a parsed payload (known programs) or raw accounts/data.
type ParsedInstruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed,omitempty"`
	Accounts  []string        `json:"accounts,omitempty"`
	Data      string          `json:"data,omitempty"`
}

// TokenInstruction is the parsed form of an SPL-Token instruction.
type TokenInstruction struct {
	Type string               `json:"type"`
	Info TokenInstructionInfo `json:"info"`
}

type TokenInstructionInfo struct {
	Source            string         `json:"source"`
	Destination       string         `json:"destination"`
	Authority         string         `json:"authority"`
	MultisigAuthority string         `json:"multisigAuthority"`
	Mint              string         `json:"mint"`
	Amount            string         `json:"amount"`      // transfer
	TokenAmount       *UITokenAmount `json:"tokenAmount"` // transferChecked
}

// TokenInstruction decodes the SPL-Token payload. ok is false for other programs
// or payloads that are not token instructions.
func (ix ParsedInstruction) TokenInstruction() (TokenInstruction, bool) {
	var ti TokenInstruction
	if ix.ProgramID != TokenProgramID.String() || len(ix.Parsed) == 0 {
		return ti, false
	}
	if err := json.Unmarshal(ix.Parsed, &ti); err != nil || ti.Type == "" {
		return ti, false
	}
	return ti, true
}

// AllInstructions returns outer instructions followed by every inner (CPI) instruction.
func (tx *ParsedTransaction) AllInstructions() []ParsedInstruction {
	out := append([]ParsedInstruction(nil), tx.Transaction.Message.Instructions...)
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			out = append(out, inner.Instructions...)
		}
	}
	return out
}

// PostTokenMint returns the mint recorded for account in the post token balances.
func (tx *ParsedTransaction) PostTokenMint(account string) (string, bool) {
	if tx.Meta == nil {
		return "", false
	}
	keys := tx.Transaction.Message.AccountKeys
	for _, b := range tx.Meta.PostTokenBalances {
		if b.AccountIndex >= 0 && b.AccountIndex < len(keys) && keys[b.AccountIndex].Pubkey == account {
			return b.Mint, true
		}
	}
	return "", false
}
