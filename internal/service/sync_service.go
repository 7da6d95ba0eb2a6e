package service

import (
	"context"
	"time"

	"github.com/wallet-explorer/internal/chain"
	"github.com/wallet-explorer/internal/config"
	apperrors "github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/logging"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/storage"
)

// ChainClient is the slice of the JSON-RPC client the sync orchestrator
// needs. Tests substitute a fake.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetBlockByNumber(ctx context.Context, number uint64) (*chain.RawBlock, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*chain.RawReceipt, error)
	GetTransactionByHash(ctx context.Context, hash string) (*chain.RawTransaction, error)
}

// GraphStore is the slice of the graph repository the sync orchestrator
// writes through.
type GraphStore interface {
	UpsertTransaction(ctx context.Context, tx *models.Transaction) error
	MarkSynced(ctx context.Context, address string, at time.Time) error
}

// SyncService pulls an address's recent history from the chain provider into
// the graph store. A sync walks the newest blocks first, so the freshest
// transactions land even when the scan is cut short.
type SyncService struct {
	client     ChainClient
	normalizer *chain.Normalizer
	store      GraphStore
	syncState  storage.SyncStateStore
	cfg        config.SyncConfig
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// NewSyncService creates a new sync orchestrator.
func NewSyncService(
	client ChainClient,
	normalizer *chain.Normalizer,
	store GraphStore,
	syncState storage.SyncStateStore,
	cfg config.SyncConfig,
	logger *logging.Logger,
) *SyncService {
	return &SyncService{
		client:     client,
		normalizer: normalizer,
		store:      store,
		syncState:  syncState,
		cfg:        cfg,
		logger:     logger.WithField("component", "sync_service"),
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// SetSleep overrides the inter-transaction pause, used by tests.
func (s *SyncService) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// SetClock overrides the time source, used by tests.
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EnsureFresh syncs an address unless it was synced within the freshness
// window. Provider failures degrade to serving whatever the store already
// holds: the error is logged, the address stays stale, and no error is
// returned to the caller. A failing freshness cache is treated the same way
// and the address is assumed stale.
func (s *SyncService) EnsureFresh(ctx context.Context, address string) error {
	return s.refresh(ctx, address, false)
}

// ForceSync re-syncs an address regardless of its freshness window, with the
// same provider-failure degradation as EnsureFresh.
func (s *SyncService) ForceSync(ctx context.Context, address string) error {
	return s.refresh(ctx, address, true)
}

func (s *SyncService) refresh(ctx context.Context, address string, force bool) error {
	address = chain.NormalizeAddress(address)
	if !chain.ValidAddress(address) {
		return apperrors.NewInvalidAddressError(address)
	}

	if !force {
		fresh, err := s.syncState.Fresh(ctx, address)
		if err != nil {
			s.logger.WithError(err).WithField("address", address).
				Warn("Freshness check failed, assuming stale")
		} else if fresh {
			return nil
		}
	}

	if err := s.Sync(ctx, address); err != nil {
		if apperrors.IsProviderError(err) {
			s.logger.WithError(err).WithField("address", address).
				Warn("Provider unavailable, serving stored transactions")
			return nil
		}
		return err
	}

	return nil
}

// Sync scans the newest blocks for transactions involving the address and
// upserts each one. Malformed transactions are skipped individually; a
// provider failure aborts the scan and leaves the address stale.
func (s *SyncService) Sync(ctx context.Context, address string) error {
	address = chain.NormalizeAddress(address)
	log := s.logger.WithField("address", address)

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"head":  head,
		"depth": s.cfg.ScanDepth,
	}).Info("Starting address sync")

	stored := 0
	for i := 0; i < s.cfg.ScanDepth; i++ {
		if uint64(i) > head {
			break
		}
		number := head - uint64(i)

		block, err := s.client.GetBlockByNumber(ctx, number)
		if err != nil {
			return err
		}
		if block == nil {
			continue
		}

		n, err := s.syncBlock(ctx, block, address)
		if err != nil {
			return err
		}
		stored += n
	}

	at := s.now()
	if err := s.store.MarkSynced(ctx, address, at); err != nil {
		return err
	}
	// The freshness cache is an optimization. Losing the stamp only means
	// the next read re-syncs.
	if err := s.syncState.MarkSynced(ctx, address); err != nil {
		log.WithError(err).Warn("Freshness stamp failed")
	}

	log.WithField("stored", stored).Info("Address sync complete")
	return nil
}

// syncBlock upserts the block's transactions that involve the address.
func (s *SyncService) syncBlock(ctx context.Context, block *chain.RawBlock, address string) (int, error) {
	timestamp := chain.BlockTimestamp(block)
	stored := 0

	for i := range block.Transactions {
		rawTx := &block.Transactions[i]
		if !chain.Involves(rawTx, address) {
			continue
		}

		// Pace per-transaction provider calls to stay under free-tier
		// rate limits.
		if err := s.sleep(ctx, s.cfg.TxDelay); err != nil {
			return stored, err
		}

		receipt, err := s.client.GetTransactionReceipt(ctx, rawTx.Hash)
		if err != nil {
			if apperrors.IsProviderError(err) {
				return stored, err
			}
			// Receipt lookup is best effort: the fee fields fill in
			// on a later sync.
			s.logger.WithError(err).WithField("hash", rawTx.Hash).
				Warn("Receipt lookup failed, storing without fee")
			receipt = nil
		}

		tx, err := s.normalizer.Normalize(rawTx, receipt, timestamp)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeMalformedTransaction) {
				s.logger.WithError(err).WithField("hash", rawTx.Hash).
					Warn("Skipping malformed transaction")
				continue
			}
			return stored, err
		}

		if err := s.store.UpsertTransaction(ctx, tx); err != nil {
			return stored, err
		}
		stored++
	}

	return stored, nil
}

// ResolveTransaction fetches a transaction by hash from the provider,
// normalizes it, and persists it. Used when a hash lookup misses the store.
func (s *SyncService) ResolveTransaction(ctx context.Context, hash string) (*models.Transaction, error) {
	rawTx, err := s.client.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rawTx == nil {
		return nil, nil
	}

	receipt, err := s.client.GetTransactionReceipt(ctx, hash)
	if err != nil {
		receipt = nil
	}

	var timestamp int64
	if rawTx.BlockNumber != "" {
		if number, derr := chain.ParseBlockNumber(rawTx.BlockNumber); derr == nil {
			if block, berr := s.client.GetBlockByNumber(ctx, number); berr == nil {
				timestamp = chain.BlockTimestamp(block)
			}
		}
	}

	tx, err := s.normalizer.Normalize(rawTx, receipt, timestamp)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
