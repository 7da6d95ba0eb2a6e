package chain

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/types"
)

func strPtr(s string) *string { return &s }

func sampleRawTx() *RawTransaction {
	return &RawTransaction{
		Hash:             "0xABCDEF0123",
		From:             "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa",
		To:               strPtr("0xBBBBbbbbBBBBbbbbBBBBbbbbBBBBbbbbBBBBbbbb"),
		Value:            "0xde0b6b3a7640000", // 1 ETH in wei
		Input:            "0x",
		Gas:              "0x5208",
		GasPrice:         "0x3b9aca00", // 1 gwei
		BlockHash:        "0xFF00",
		BlockNumber:      "0x64",
		TransactionIndex: "0x2",
	}
}

func sampleReceipt() *RawReceipt {
	return &RawReceipt{
		TransactionHash: "0xabcdef0123",
		BlockNumber:     "0x64",
		GasUsed:         "0x5208", // 21000
		Status:          "0x1",
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(types.SourceInfura)

	tx, err := n.Normalize(sampleRawTx(), sampleReceipt(), 1700000000)
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef0123", tx.Hash)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", tx.Sender)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", tx.Receiver)
	assert.Equal(t, "1000000000000000000", tx.Value)
	assert.Equal(t, "21000", tx.GasUsed)
	assert.Equal(t, "1000000000", tx.GasPrice)
	// 21000 * 1 gwei
	assert.Equal(t, "21000000000000", tx.TransactionFee)
	assert.Equal(t, uint64(100), tx.BlockNumber)
	assert.Equal(t, int64(100*100000+2), tx.TransactionIndex)
	assert.Equal(t, int64(1700000000), tx.BlockTimestamp)
	assert.Equal(t, types.SourceInfura, tx.Source)
	assert.Equal(t, types.BlockchainEthereum, tx.Blockchain)
}

func TestNormalizeContractCreation(t *testing.T) {
	n := NewNormalizer(types.SourceInfura)
	raw := sampleRawTx()
	raw.To = nil

	tx, err := n.Normalize(raw, nil, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroAddress, tx.Receiver)
}

func TestNormalizeWithoutReceipt(t *testing.T) {
	n := NewNormalizer(types.SourceInfura)

	tx, err := n.Normalize(sampleRawTx(), nil, 1700000000)
	require.NoError(t, err)
	// Receipt-derived fields stay empty until a later sync fills them in.
	assert.Empty(t, tx.GasUsed)
	assert.Empty(t, tx.TransactionFee)
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer(types.SourceInfura)

	tests := []struct {
		name   string
		mutate func(*RawTransaction)
	}{
		{"missing hash", func(tx *RawTransaction) { tx.Hash = "" }},
		{"missing sender", func(tx *RawTransaction) { tx.From = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sampleRawTx()
			tt.mutate(raw)

			_, err := n.Normalize(raw, nil, 0)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeMalformedTransaction))
		})
	}
}

func TestNormalizeHugeFee(t *testing.T) {
	n := NewNormalizer(types.SourceInfura)
	raw := sampleRawTx()
	raw.GasPrice = "0x52b7d2dcc80cd2e4000000" // 10^26, past float64's integer range
	receipt := sampleReceipt()

	tx, err := n.Normalize(raw, receipt, 0)
	require.NoError(t, err)
	assert.Equal(t, "2100000000000000000000000000000", tx.TransactionFee)
}

func TestDirectionFor(t *testing.T) {
	raw := sampleRawTx()

	// Case-insensitive match on the sender side.
	assert.Equal(t, types.DirectionOutgoing,
		DirectionFor(raw, "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.Equal(t, types.DirectionIncoming,
		DirectionFor(raw, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
}

func TestTransactionFeeProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// The fee is exactly gasUsed*gasPrice in integer arithmetic for any
	// non-negative operands.
	properties.Property("fee equals product", prop.ForAll(
		func(used int64, price int64) bool {
			got := TransactionFee(
				new(big.Int).SetInt64(used).String(),
				new(big.Int).SetInt64(price).String(),
			)
			want := new(big.Int).Mul(big.NewInt(used), big.NewInt(price)).String()
			return got == want
		},
		gen.Int64Range(0, 1<<62),
		gen.Int64Range(0, 1<<62),
	))

	properties.TestingRun(t)
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"))
	assert.False(t, ValidAddress("0x123"))
	assert.False(t, ValidAddress("not-an-address"))
}
