package models

import (
	"time"

	"github.com/wallet-explorer/internal/types"
)

// Address represents a chain account node in the wallet graph. Created on
// first reference by either side of a transaction; never deleted.
type Address struct {
	ID         int64            `json:"-" db:"id"`
	Address    string           `json:"address" db:"address"` // lowercase hex
	Blockchain types.Blockchain `json:"blockchain" db:"blockchain"`
	FirstSeen  time.Time        `json:"firstSeen" db:"first_seen"`
	// LastSyncedAt is set only for addresses that have been queried directly,
	// so the refresher knows which nodes to keep warm.
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
}
