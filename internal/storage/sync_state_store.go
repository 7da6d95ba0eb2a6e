package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/wallet-explorer/internal/errors"
)

// SyncStateStore records when an address was last synced against the chain.
// An address is fresh while its record is younger than the freshness window;
// queries for fresh addresses are served from the store without touching the
// provider.
type SyncStateStore interface {
	// Fresh reports whether the address was synced within the window.
	Fresh(ctx context.Context, address string) (bool, error)
	// MarkSynced stamps the address as synced now.
	MarkSynced(ctx context.Context, address string) error
	// LastSyncedAt returns the stamp time, or the zero time when the
	// record has expired or never existed.
	LastSyncedAt(ctx context.Context, address string) (time.Time, error)
}

// RedisSyncStateStore keeps sync stamps as Redis keys whose TTL equals the
// freshness window, so freshness is just key existence and expiry needs no
// sweeper.
type RedisSyncStateStore struct {
	cache  *RedisCache
	window time.Duration
	now    func() time.Time
}

// NewRedisSyncStateStore creates a sync state store over Redis.
func NewRedisSyncStateStore(cache *RedisCache, window time.Duration) *RedisSyncStateStore {
	return &RedisSyncStateStore{cache: cache, window: window, now: time.Now}
}

func syncStateKey(address string) string {
	return fmt.Sprintf("sync:%s", strings.ToLower(address))
}

func (s *RedisSyncStateStore) Fresh(ctx context.Context, address string) (bool, error) {
	ok, err := s.cache.Exists(ctx, syncStateKey(address))
	if err != nil {
		return false, apperrors.NewStoreUnavailableError("syncState.fresh", err)
	}
	return ok, nil
}

func (s *RedisSyncStateStore) MarkSynced(ctx context.Context, address string) error {
	stamp := s.now().UTC().Format(time.RFC3339)
	if err := s.cache.Set(ctx, syncStateKey(address), stamp, s.window); err != nil {
		return apperrors.NewStoreUnavailableError("syncState.mark", err)
	}
	return nil
}

func (s *RedisSyncStateStore) LastSyncedAt(ctx context.Context, address string) (time.Time, error) {
	raw, err := s.cache.Get(ctx, syncStateKey(address))
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperrors.NewStoreUnavailableError("syncState.lastSyncedAt", err)
	}

	stamp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return stamp, nil
}

// MemorySyncStateStore is an in-process SyncStateStore for tests and
// single-node deployments without Redis.
type MemorySyncStateStore struct {
	mu     sync.RWMutex
	stamps map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewMemorySyncStateStore creates an in-memory sync state store.
func NewMemorySyncStateStore(window time.Duration) *MemorySyncStateStore {
	return &MemorySyncStateStore{
		stamps: make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// SetClock overrides the time source, used by tests.
func (s *MemorySyncStateStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemorySyncStateStore) Fresh(ctx context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamp, ok := s.stamps[strings.ToLower(address)]
	if !ok {
		return false, nil
	}
	return s.now().Sub(stamp) < s.window, nil
}

func (s *MemorySyncStateStore) MarkSynced(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stamps[strings.ToLower(address)] = s.now()
	return nil
}

func (s *MemorySyncStateStore) LastSyncedAt(ctx context.Context, address string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamp, ok := s.stamps[strings.ToLower(address)]
	if !ok || s.now().Sub(stamp) >= s.window {
		return time.Time{}, nil
	}
	return stamp, nil
}
