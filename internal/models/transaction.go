package models

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/wallet-explorer/internal/types"
)

// Transaction represents one on-chain transaction stored as an edge between
// its sender and receiver address nodes. A hash is globally unique in the
// store; re-syncing an address must converge to one record per hash.
type Transaction struct {
	Hash             string           `json:"hash" db:"hash"`
	Sender           string           `json:"sender" db:"sender"`
	Receiver         string           `json:"receiver" db:"receiver"`
	Value            string           `json:"value" db:"value"` // base units, integer string
	Input            string           `json:"input" db:"input"`
	Gas              string           `json:"gas" db:"gas"`
	GasUsed          string           `json:"gasUsed" db:"gas_used"`
	GasPrice         string           `json:"gasPrice" db:"gas_price"`
	TransactionFee   string           `json:"transactionFee" db:"transaction_fee"` // gasUsed * gasPrice
	BlockNumber      uint64           `json:"blockNumber" db:"block_number"`
	TransactionIndex int64            `json:"transactionIndex" db:"transaction_index"` // pagination cursor
	BlockHash        string           `json:"blockHash" db:"block_hash"`
	BlockTimestamp   int64            `json:"blockTimestamp" db:"block_timestamp"` // unix seconds
	Source           types.Source     `json:"source" db:"source"`
	Blockchain       types.Blockchain `json:"blockchain" db:"blockchain"`
}

// DirectionFor returns the transaction direction relative to an address.
// A transaction is outgoing iff the address is the sender.
func (t *Transaction) DirectionFor(address string) types.TransactionDirection {
	if strings.EqualFold(t.Sender, address) {
		return types.DirectionOutgoing
	}
	return types.DirectionIncoming
}

// ValueBig parses the transfer value as a big integer. Base-unit values
// commonly exceed 2^53, so callers must never round-trip through float64.
func (t *Transaction) ValueBig() *big.Int {
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// TransactionIndexFor derives the pagination cursor value for a transaction:
// chronological, unique per transaction, and stable across re-syncs.
func TransactionIndexFor(blockNumber uint64, positionInBlock int) int64 {
	return int64(blockNumber)*100000 + int64(positionInBlock)
}

// FormatCursor renders a transaction index as a client-facing cursor string.
func FormatCursor(cursor int64) string {
	return strconv.FormatInt(cursor, 10)
}
