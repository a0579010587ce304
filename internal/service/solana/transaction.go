package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// maxTransactionSize is the packet limit for a serialized transaction.
const maxTransactionSize = 1232

// splTransfer is the SPL-Token instruction tag for Transfer.
const splTransfer byte = 3

// TransferParams describes an SPL-Token transfer with an optional memo.
type TransferParams struct {
	Payer           PublicKey // fee payer and token owner
	Source          PublicKey // payer's token account
	Destination     PublicKey // recipient's token account
	Amount          uint64    // base units
	Memo            string
	RecentBlockhash string
}

type compiledInstruction struct {
	programIndex uint8
	accounts     []uint8
	data         []byte
}

// BuildTransferTransaction serializes an unsigned legacy transaction: one empty
// signature slot for the payer, then the message. The result is base64.
func BuildTransferTransaction(p TransferParams) (string, error) {
	if p.Source == p.Destination {
		return "", errors.New("source and destination token accounts are identical")
	}
	blockhash, err := base58.Decode(p.RecentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return "", fmt.Errorf("invalid recent blockhash %q", p.RecentBlockhash)
	}

	// signer-writable, unsigned-writable, then unsigned-readonly programs
	keys := []PublicKey{p.Payer, p.Source, p.Destination, TokenProgramID}
	readonlyUnsigned := uint8(1)

	data := make([]byte, 9)
	data[0] = splTransfer
	binary.LittleEndian.PutUint64(data[1:], p.Amount)
	instructions := []compiledInstruction{
		{programIndex: 3, accounts: []uint8{1, 2, 0}, data: data},
	}

	if p.Memo != "" {
		keys = append(keys, MemoProgramID)
		readonlyUnsigned++
		instructions = append(instructions, compiledInstruction{programIndex: 4, data: []byte(p.Memo)})
	}

	var msg bytes.Buffer
	msg.Write([]byte{1, 0, readonlyUnsigned})
	writeCompactU16(&msg, len(keys))
	for _, k := range keys {
		msg.Write(k[:])
	}
	msg.Write(blockhash)
	writeCompactU16(&msg, len(instructions))
	for _, ix := range instructions {
		msg.WriteByte(ix.programIndex)
		writeCompactU16(&msg, len(ix.accounts))
		msg.Write(ix.accounts)
		writeCompactU16(&msg, len(ix.data))
		msg.Write(ix.data)
	}

	var tx bytes.Buffer
	writeCompactU16(&tx, 1)
	tx.Write(make([]byte, SignatureLength))
	tx.Write(msg.Bytes())

	if tx.Len() > maxTransactionSize {
		return "", fmt.Errorf("transaction is %d bytes, limit %d", tx.Len(), maxTransactionSize)
	}
	return base64.StdEncoding.EncodeToString(tx.Bytes()), nil
}

// writeCompactU16 writes the short-vec length prefix: 7 bits per byte, high bit continues.
func writeCompactU16(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
