package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wallet-explorer/internal/types"
)

func TestDirectionFor(t *testing.T) {
	tx := &Transaction{
		Sender:   "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Receiver: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}

	assert.Equal(t, types.DirectionOutgoing, tx.DirectionFor("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.Equal(t, types.DirectionOutgoing, tx.DirectionFor("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.Equal(t, types.DirectionIncoming, tx.DirectionFor("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	assert.Equal(t, types.DirectionIncoming, tx.DirectionFor("0xcccccccccccccccccccccccccccccccccccccccc"))
}

func TestTransactionIndexFor(t *testing.T) {
	// Chronological: a later block always outranks an earlier one,
	// position breaks ties within a block.
	assert.Less(t, TransactionIndexFor(100, 99), TransactionIndexFor(101, 0))
	assert.Less(t, TransactionIndexFor(100, 0), TransactionIndexFor(100, 1))
	assert.Equal(t, TransactionIndexFor(100, 5), TransactionIndexFor(100, 5))
}

func TestValueBig(t *testing.T) {
	// 26-digit values exceed 2^53 and must survive the round trip exactly.
	tx := &Transaction{Value: "12345678901234567890123456"}
	assert.Equal(t, "12345678901234567890123456", tx.ValueBig().String())

	malformed := &Transaction{Value: "not-a-number"}
	assert.Equal(t, "0", malformed.ValueBig().String())
}

func TestFormatCursor(t *testing.T) {
	assert.Equal(t, "10900000", FormatCursor(TransactionIndexFor(109, 0)))
}

func TestSyncStateFresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	state := &SyncState{Address: "0xabc", LastSyncedAt: now.Add(-10 * time.Minute)}

	assert.True(t, state.Fresh(now, 15*time.Minute))
	assert.False(t, state.Fresh(now, 5*time.Minute))
}
