package models

import "time"

// SyncState is per-address sync bookkeeping. It lives in a TTL cache, not the
// graph store: serving data within the freshness window is a best-effort
// optimization, never a correctness mechanism.
type SyncState struct {
	Address      string    `json:"address"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

// Fresh reports whether the state is within the freshness window at the
// given instant.
func (s *SyncState) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastSyncedAt) < window
}
