package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeroBlockhash = "11111111111111111111111111111111"

func TestBuildTransferTransaction_Layout(t *testing.T) {
	payer := MustPublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := MustPublicKey(usdcMint)
	src, err := AssociatedTokenAddress(payer, mint)
	require.NoError(t, err)
	dst, err := AssociatedTokenAddress(MustPublicKey(recipientAddr), mint)
	require.NoError(t, err)

	encoded, err := BuildTransferTransaction(TransferParams{
		Payer:           payer,
		Source:          src,
		Destination:     dst,
		Amount:          10,
		Memo:            "X402 Chat Payment",
		RecentBlockhash: zeroBlockhash,
	})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// one empty signature slot
	require.Equal(t, byte(1), raw[0])
	assert.Equal(t, make([]byte, 64), raw[1:65])

	msg := raw[65:]
	assert.Equal(t, []byte{1, 0, 2}, msg[:3], "header")
	require.Equal(t, byte(5), msg[3], "account count")

	keyAt := func(i int) []byte { return msg[4+32*i : 4+32*(i+1)] }
	assert.Equal(t, payer[:], keyAt(0))
	assert.Equal(t, src[:], keyAt(1))
	assert.Equal(t, dst[:], keyAt(2))
	assert.Equal(t, TokenProgramID[:], keyAt(3))
	assert.Equal(t, MemoProgramID[:], keyAt(4))

	rest := msg[4+32*5+32:] // after blockhash
	require.Equal(t, byte(2), rest[0], "instruction count")

	// transfer: program 3, accounts [1 2 0], data [3, u64 LE]
	assert.Equal(t, []byte{3, 3, 1, 2, 0, 9, 3}, rest[1:8])
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(rest[8:16]))

	// memo: program 4, no accounts, utf-8 payload
	memo := rest[16:]
	assert.Equal(t, byte(4), memo[0])
	assert.Equal(t, byte(0), memo[1])
	assert.Equal(t, byte(len("X402 Chat Payment")), memo[2])
	assert.Equal(t, "X402 Chat Payment", string(memo[3:]))
}

func TestBuildTransferTransaction_WithoutMemo(t *testing.T) {
	payer := MustPublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	encoded, err := BuildTransferTransaction(TransferParams{
		Payer:           payer,
		Source:          MustPublicKey(usdcMint),
		Destination:     MustPublicKey(recipientAddr),
		Amount:          1,
		RecentBlockhash: zeroBlockhash,
	})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	msg := raw[65:]
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	assert.Equal(t, byte(4), msg[3])
}

func TestBuildTransferTransaction_Rejects(t *testing.T) {
	payer := MustPublicKey(recipientAddr)

	_, err := BuildTransferTransaction(TransferParams{
		Payer: payer, Source: payer, Destination: payer, Amount: 1, RecentBlockhash: zeroBlockhash,
	})
	assert.Error(t, err, "identical accounts")

	_, err = BuildTransferTransaction(TransferParams{
		Payer: payer, Source: payer, Destination: TokenProgramID, Amount: 1, RecentBlockhash: "bad",
	})
	assert.Error(t, err, "bad blockhash")
}

func TestWriteCompactU16(t *testing.T) {
	cases := map[int][]byte{
		0:      {0x00},
		0x7f:   {0x7f},
		0x80:   {0x80, 0x01},
		0x3fff: {0xff, 0x7f},
		0x4000: {0x80, 0x80, 0x01},
	}
	for n, want := range cases {
		var buf bytes.Buffer
		writeCompactU16(&buf, n)
		assert.Equal(t, want, buf.Bytes(), "n=%d", n)
	}
}
