package service

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/wallet-explorer/internal/chain"
	"github.com/wallet-explorer/internal/config"
	apperrors "github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/types"
)

// GraphQuerier is the slice of the graph repository the query service reads
// through.
type GraphQuerier interface {
	QueryTransactions(ctx context.Context, address string, direction types.PageDirection, cursor int64, limit int) ([]*models.Transaction, error)
	GetByHash(ctx context.Context, hash string) (*models.Transaction, error)
	CountFor(ctx context.Context, address string) (int64, error)
}

// Freshener brings an address up to date before a read. The sync service
// implements it; tests substitute a no-op.
type Freshener interface {
	EnsureFresh(ctx context.Context, address string) error
	ForceSync(ctx context.Context, address string) error
	ResolveTransaction(ctx context.Context, hash string) (*models.Transaction, error)
}

// SyncStateReader exposes the last sync stamp for address summaries.
type SyncStateReader interface {
	LastSyncedAt(ctx context.Context, address string) (time.Time, error)
}

// AccountReader reads live account state from the provider for address
// summaries. Lookups are best effort; a summary without them is still valid.
type AccountReader interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, address string) (uint64, error)
}

// QueryService serves paginated transaction history for an address, syncing
// on demand so the first page reflects recent chain activity.
type QueryService struct {
	repo      GraphQuerier
	syncer    Freshener
	syncState SyncStateReader
	accounts  AccountReader
	pageSize  int
}

// NewQueryService creates a new query service. accounts may be nil, in which
// case summaries omit live balance and nonce.
func NewQueryService(repo GraphQuerier, syncer Freshener, syncState SyncStateReader, accounts AccountReader, cfg config.QueryConfig) *QueryService {
	return &QueryService{
		repo:      repo,
		syncer:    syncer,
		syncState: syncState,
		accounts:  accounts,
		pageSize:  cfg.PageSize,
	}
}

// TransactionView is a stored transaction annotated with the queried
// address's perspective.
type TransactionView struct {
	*models.Transaction
	Direction    types.TransactionDirection `json:"direction"`
	Counterparty string                     `json:"counterparty"`
}

// TransactionPage is one window of an address's transaction feed, newest
// first.
type TransactionPage struct {
	Address      string             `json:"address"`
	Transactions []*TransactionView `json:"transactions"`
	// NewestCursor and OldestCursor bound the page; feed them back with
	// direction=newer or direction=older to page through the feed.
	NewestCursor int64 `json:"newestCursor"`
	OldestCursor int64 `json:"oldestCursor"`
	HasMore      bool  `json:"hasMore"`
}

// AddressSummary describes an address node. Balance and Nonce come straight
// from the provider and are omitted when it is unreachable.
type AddressSummary struct {
	Address          string           `json:"address"`
	Blockchain       types.Blockchain `json:"blockchain"`
	TransactionCount int64            `json:"transactionCount"`
	Balance          string           `json:"balance,omitempty"` // base units, integer string
	Nonce            *uint64          `json:"nonce,omitempty"`
	LastSyncedAt     *time.Time       `json:"lastSyncedAt,omitempty"`
}

// ParseCursor converts a client-supplied cursor string into a transaction
// index.
func ParseCursor(raw string) (int64, error) {
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, apperrors.NewInvalidCursorError(raw)
	}
	return cursor, nil
}

// FetchPage returns one page of the address's feed. The initial page is the
// newest transactions; older and newer pages continue from a cursor returned
// by a previous call. Pages are always returned newest first. A forced fetch
// re-syncs the address even inside its freshness window.
func (s *QueryService) FetchPage(ctx context.Context, address string, direction types.PageDirection, rawCursor string, force bool) (*TransactionPage, error) {
	address = chain.NormalizeAddress(address)
	if !chain.ValidAddress(address) {
		return nil, apperrors.NewInvalidAddressError(address)
	}
	if !direction.Valid() {
		return nil, apperrors.NewInvalidParameterError("direction", "must be initial, older, or newer")
	}

	var cursor int64
	if direction != types.PageInitial {
		if rawCursor == "" {
			return nil, apperrors.NewInvalidCursorError(rawCursor)
		}
		parsed, err := ParseCursor(rawCursor)
		if err != nil {
			return nil, err
		}
		cursor = parsed
	}

	if force {
		if err := s.syncer.ForceSync(ctx, address); err != nil {
			return nil, err
		}
	} else if err := s.syncer.EnsureFresh(ctx, address); err != nil {
		return nil, err
	}

	// Fetch one extra row to detect a further page.
	rows, err := s.repo.QueryTransactions(ctx, address, direction, cursor, s.pageSize+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > s.pageSize
	if hasMore {
		rows = rows[:s.pageSize]
	}

	// Newer pages come back oldest first; flip them so every page reads
	// newest first.
	if direction == types.PageNewer {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	page := &TransactionPage{
		Address:      address,
		Transactions: make([]*TransactionView, 0, len(rows)),
		HasMore:      hasMore,
	}
	for _, tx := range rows {
		page.Transactions = append(page.Transactions, viewFor(tx, address))
	}
	if len(rows) > 0 {
		page.NewestCursor = rows[0].TransactionIndex
		page.OldestCursor = rows[len(rows)-1].TransactionIndex
	}

	return page, nil
}

// GetTransaction returns a single transaction by hash. A store miss falls
// through to the provider, persisting the result for the next lookup.
func (s *QueryService) GetTransaction(ctx context.Context, hash string) (*models.Transaction, error) {
	tx, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return tx, nil
	}

	tx, err = s.syncer.ResolveTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, apperrors.NewNotFoundError("transaction", hash)
	}
	return tx, nil
}

// Summarize returns the stored footprint of an address.
func (s *QueryService) Summarize(ctx context.Context, address string) (*AddressSummary, error) {
	address = chain.NormalizeAddress(address)
	if !chain.ValidAddress(address) {
		return nil, apperrors.NewInvalidAddressError(address)
	}

	count, err := s.repo.CountFor(ctx, address)
	if err != nil {
		return nil, err
	}

	summary := &AddressSummary{
		Address:          address,
		Blockchain:       types.BlockchainEthereum,
		TransactionCount: count,
	}

	if stamp, err := s.syncState.LastSyncedAt(ctx, address); err == nil && !stamp.IsZero() {
		summary.LastSyncedAt = &stamp
	}

	if s.accounts != nil {
		if balance, err := s.accounts.GetBalance(ctx, address); err == nil {
			summary.Balance = balance.String()
		}
		if nonce, err := s.accounts.GetTransactionCount(ctx, address); err == nil {
			summary.Nonce = &nonce
		}
	}

	return summary, nil
}

// viewFor annotates a stored edge with the queried address's perspective.
func viewFor(tx *models.Transaction, address string) *TransactionView {
	view := &TransactionView{
		Transaction: tx,
		Direction:   tx.DirectionFor(address),
	}
	if view.Direction == types.DirectionOutgoing {
		view.Counterparty = tx.Receiver
	} else {
		view.Counterparty = tx.Sender
	}
	return view
}
