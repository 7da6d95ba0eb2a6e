package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/types"
)

// Normalizer converts raw provider records into canonical transactions. All
// field defaults live here so consumers never patch missing values inline.
type Normalizer struct {
	source types.Source
}

// NewNormalizer creates a normalizer tagging records with the given provider
// source.
func NewNormalizer(source types.Source) *Normalizer {
	return &Normalizer{source: source}
}

// Normalize builds a canonical transaction from a raw transaction, its
// receipt (may be nil; receipt-derived fields are then filled in on a later
// sync), and the enclosing block's timestamp. Addresses are lowercased, a
// missing receiver becomes the zero address (contract creation), and the fee
// is computed as gasUsed * gasPrice in arbitrary-precision arithmetic.
func (n *Normalizer) Normalize(rawTx *RawTransaction, receipt *RawReceipt, blockTimestamp int64) (*models.Transaction, error) {
	if rawTx == nil {
		return nil, errors.NewMalformedTransactionError("missing transaction", "")
	}
	if rawTx.Hash == "" {
		return nil, errors.NewMalformedTransactionError("missing hash", "")
	}
	if rawTx.From == "" {
		return nil, errors.NewMalformedTransactionError("missing sender", rawTx.Hash)
	}

	receiver := types.ZeroAddress
	if rawTx.To != nil && *rawTx.To != "" {
		receiver = strings.ToLower(*rawTx.To)
	}

	blockNumber, err := hexutil.DecodeUint64(rawTx.BlockNumber)
	if err != nil {
		return nil, errors.NewMalformedTransactionError(
			fmt.Sprintf("invalid block number %q", rawTx.BlockNumber), rawTx.Hash)
	}

	position := 0
	if rawTx.TransactionIndex != "" {
		p, err := hexutil.DecodeUint64(rawTx.TransactionIndex)
		if err != nil {
			return nil, errors.NewMalformedTransactionError(
				fmt.Sprintf("invalid transaction index %q", rawTx.TransactionIndex), rawTx.Hash)
		}
		position = int(p)
	}

	input := rawTx.Input
	if input == "" {
		input = "0x"
	}

	tx := &models.Transaction{
		Hash:             strings.ToLower(rawTx.Hash),
		Sender:           strings.ToLower(rawTx.From),
		Receiver:         receiver,
		Value:            decodeQuantity(rawTx.Value),
		Input:            input,
		Gas:              decodeQuantity(rawTx.Gas),
		GasPrice:         decodeQuantity(rawTx.GasPrice),
		BlockNumber:      blockNumber,
		TransactionIndex: models.TransactionIndexFor(blockNumber, position),
		BlockHash:        strings.ToLower(rawTx.BlockHash),
		BlockTimestamp:   blockTimestamp,
		Source:           n.source,
		Blockchain:       types.BlockchainEthereum,
	}

	if receipt != nil && receipt.GasUsed != "" {
		tx.GasUsed = decodeQuantity(receipt.GasUsed)
		tx.TransactionFee = TransactionFee(tx.GasUsed, tx.GasPrice)
	}

	return tx, nil
}

// DirectionFor returns the direction of a raw transaction relative to the
// queried address: outgoing iff the address is the sender (case-insensitive).
func DirectionFor(rawTx *RawTransaction, queriedAddress string) types.TransactionDirection {
	if strings.EqualFold(rawTx.From, queriedAddress) {
		return types.DirectionOutgoing
	}
	return types.DirectionIncoming
}

// Involves reports whether an address is either endpoint of a raw
// transaction.
func Involves(rawTx *RawTransaction, address string) bool {
	if strings.EqualFold(rawTx.From, address) {
		return true
	}
	return rawTx.To != nil && strings.EqualFold(*rawTx.To, address)
}

// TransactionFee computes gasUsed * gasPrice over decimal strings using
// big.Int. Fee values routinely exceed 2^53, so float64 is never safe here.
func TransactionFee(gasUsed, gasPrice string) string {
	used, ok := new(big.Int).SetString(gasUsed, 10)
	if !ok {
		return "0"
	}
	price, ok := new(big.Int).SetString(gasPrice, 10)
	if !ok {
		return "0"
	}
	return new(big.Int).Mul(used, price).String()
}

// decodeQuantity converts a 0x-prefixed hex quantity to a decimal string,
// defaulting to "0" for missing or malformed values.
func decodeQuantity(hex string) string {
	if hex == "" {
		return "0"
	}
	v, err := hexutil.DecodeBig(hex)
	if err != nil {
		return "0"
	}
	return v.String()
}

// ParseBlockNumber decodes a 0x-prefixed hex block number.
func ParseBlockNumber(hex string) (uint64, error) {
	return hexutil.DecodeUint64(hex)
}

// BlockTimestamp decodes a block's hex timestamp, or 0 when it is missing
// or malformed.
func BlockTimestamp(block *RawBlock) int64 {
	if block == nil || block.Timestamp == "" {
		return 0
	}
	v, err := hexutil.DecodeUint64(block.Timestamp)
	if err != nil {
		return 0
	}
	return int64(v)
}

// ValidAddress reports whether the string is a well-formed hex address.
func ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress lowercases a hex address for use as a graph node key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
