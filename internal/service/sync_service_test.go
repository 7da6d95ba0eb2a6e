package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-explorer/internal/chain"
	"github.com/wallet-explorer/internal/config"
	apperrors "github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/logging"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/storage"
	"github.com/wallet-explorer/internal/types"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testPeer   = "0x2222222222222222222222222222222222222222"
	testOther  = "0x3333333333333333333333333333333333333333"
)

// fakeChainClient serves canned blocks and counts provider calls.
type fakeChainClient struct {
	head     uint64
	headErr  error
	blocks   map[uint64]*chain.RawBlock
	blockErr map[uint64]error
	receipts map[string]*chain.RawReceipt
	txs      map[string]*chain.RawTransaction

	calls int
}

func newFakeChainClient(head uint64) *fakeChainClient {
	return &fakeChainClient{
		head:     head,
		blocks:   make(map[uint64]*chain.RawBlock),
		blockErr: make(map[uint64]error),
		receipts: make(map[string]*chain.RawReceipt),
		txs:      make(map[string]*chain.RawTransaction),
	}
}

func (f *fakeChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.calls++
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeChainClient) GetBlockByNumber(ctx context.Context, number uint64) (*chain.RawBlock, error) {
	f.calls++
	if err := f.blockErr[number]; err != nil {
		return nil, err
	}
	block, ok := f.blocks[number]
	if !ok {
		return &chain.RawBlock{
			Number:    hexUint(number),
			Hash:      fmt.Sprintf("0xb%063d", number),
			Timestamp: "0x665f0000",
		}, nil
	}
	return block, nil
}

func (f *fakeChainClient) GetTransactionReceipt(ctx context.Context, hash string) (*chain.RawReceipt, error) {
	f.calls++
	return f.receipts[hash], nil
}

func (f *fakeChainClient) GetTransactionByHash(ctx context.Context, hash string) (*chain.RawTransaction, error) {
	f.calls++
	return f.txs[hash], nil
}

func (f *fakeChainClient) addBlock(number uint64, txs ...chain.RawTransaction) {
	f.blocks[number] = &chain.RawBlock{
		Number:       hexUint(number),
		Hash:         fmt.Sprintf("0xb%063d", number),
		Timestamp:    "0x665f0000",
		Transactions: txs,
	}
}

func hexUint(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func rawTx(hash, from, to string, block uint64, position int) chain.RawTransaction {
	return chain.RawTransaction{
		Hash:             hash,
		From:             from,
		To:               &to,
		Value:            "0xde0b6b3a7640000",
		Input:            "0x",
		Gas:              "0x5208",
		GasPrice:         "0x4a817c800",
		BlockHash:        fmt.Sprintf("0xb%063d", block),
		BlockNumber:      hexUint(block),
		TransactionIndex: fmt.Sprintf("0x%x", position),
	}
}

// memGraphStore is an in-memory stand-in for the Postgres graph repository.
type memGraphStore struct {
	mu       sync.Mutex
	txs      map[string]*models.Transaction
	syncedAt map[string]time.Time
}

func newMemGraphStore() *memGraphStore {
	return &memGraphStore{
		txs:      make(map[string]*models.Transaction),
		syncedAt: make(map[string]time.Time),
	}
}

func (m *memGraphStore) UpsertTransaction(ctx context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.txs[tx.Hash]
	if !ok {
		clone := *tx
		m.txs[tx.Hash] = &clone
		return nil
	}
	if tx.GasUsed != "" {
		existing.GasUsed = tx.GasUsed
	}
	if tx.TransactionFee != "" {
		existing.TransactionFee = tx.TransactionFee
	}
	return nil
}

func (m *memGraphStore) MarkSynced(ctx context.Context, address string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncedAt[address] = at
	return nil
}

func (m *memGraphStore) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[hash], nil
}

func (m *memGraphStore) involving(address string) []*models.Transaction {
	var out []*models.Transaction
	for _, tx := range m.txs {
		if tx.Sender == address || tx.Receiver == address {
			out = append(out, tx)
		}
	}
	return out
}

func (m *memGraphStore) QueryTransactions(ctx context.Context, address string, direction types.PageDirection, cursor int64, limit int) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.involving(address)
	switch direction {
	case types.PageOlder:
		filtered := rows[:0]
		for _, tx := range rows {
			if tx.TransactionIndex < cursor {
				filtered = append(filtered, tx)
			}
		}
		rows = filtered
	case types.PageNewer:
		filtered := rows[:0]
		for _, tx := range rows {
			if tx.TransactionIndex > cursor {
				filtered = append(filtered, tx)
			}
		}
		rows = filtered
	}

	asc := direction == types.PageNewer
	sort.Slice(rows, func(i, j int) bool {
		if asc {
			return rows[i].TransactionIndex < rows[j].TransactionIndex
		}
		return rows[i].TransactionIndex > rows[j].TransactionIndex
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memGraphStore) CountFor(ctx context.Context, address string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.involving(address))), nil
}

func newTestSyncService(client ChainClient, store *memGraphStore, state storage.SyncStateStore) *SyncService {
	cfg := config.SyncConfig{
		FreshnessWindow: 15 * time.Minute,
		ScanDepth:       30,
		TxDelay:         200 * time.Millisecond,
	}
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	svc := NewSyncService(client, chain.NewNormalizer(types.SourceInfura), store, state, cfg, logger)
	svc.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })
	return svc
}

func TestSyncService_ColdSync(t *testing.T) {
	client := newFakeChainClient(1000)
	// Seven unique transactions spread over the newest blocks, with one
	// repeated hash that must not double-count.
	client.addBlock(1000,
		rawTx("0xa1", testWallet, testPeer, 1000, 0),
		rawTx("0xa2", testPeer, testWallet, 1000, 1),
		rawTx("0xzz", testPeer, testOther, 1000, 2),
	)
	client.addBlock(999,
		rawTx("0xa3", testWallet, testOther, 999, 0),
		rawTx("0xa4", testOther, testWallet, 999, 1),
		rawTx("0xa5", testWallet, testPeer, 999, 2),
	)
	client.addBlock(998,
		rawTx("0xa6", testWallet, testPeer, 998, 0),
		rawTx("0xa7", testPeer, testWallet, 998, 1),
		rawTx("0xa6", testWallet, testPeer, 998, 0),
	)
	client.receipts["0xa1"] = &chain.RawReceipt{
		TransactionHash: "0xa1",
		BlockNumber:     hexUint(1000),
		GasUsed:         "0x5208",
		Status:          "0x1",
	}

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	rows := store.involving(testWallet)
	assert.Len(t, rows, 7)

	// Receipt-backed transaction carries its fee.
	stored, _ := store.GetByHash(context.Background(), "0xa1")
	require.NotNil(t, stored)
	assert.Equal(t, "21000", stored.GasUsed)
	assert.Equal(t, "420000000000000", stored.TransactionFee)

	// Uninvolved transaction never lands.
	miss, _ := store.GetByHash(context.Background(), "0xzz")
	assert.Nil(t, miss)

	fresh, err := state.Fresh(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSyncService_FreshAddressSkipsProvider(t *testing.T) {
	client := newFakeChainClient(1000)
	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	require.NoError(t, state.MarkSynced(context.Background(), testWallet))

	svc := newTestSyncService(client, store, state)
	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	assert.Zero(t, client.calls, "fresh address must not touch the provider")
}

func TestSyncService_ProviderFailureDegrades(t *testing.T) {
	client := newFakeChainClient(1000)
	client.headErr = apperrors.NewProviderUnavailableError("eth_blockNumber", assert.AnError)

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	// Degrades to the store instead of failing the query.
	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	fresh, err := state.Fresh(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, fresh, "failed sync must leave the address stale")
}

// faultySyncState fails freshness reads and stamps while delegating nothing.
type faultySyncState struct {
	err error
}

func (f *faultySyncState) Fresh(ctx context.Context, address string) (bool, error) {
	return false, f.err
}

func (f *faultySyncState) MarkSynced(ctx context.Context, address string) error {
	return f.err
}

func (f *faultySyncState) LastSyncedAt(ctx context.Context, address string) (time.Time, error) {
	return time.Time{}, f.err
}

func TestSyncService_ForceSyncDegradesOnProviderFailure(t *testing.T) {
	client := newFakeChainClient(1000)
	client.headErr = apperrors.NewProviderUnavailableError("eth_blockNumber", assert.AnError)

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	// A forced re-sync with the provider down still serves the store.
	require.NoError(t, svc.ForceSync(context.Background(), testWallet))

	fresh, err := state.Fresh(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, fresh, "failed sync must leave the address stale")
}

func TestSyncService_ForceSyncSkipsFreshnessCheck(t *testing.T) {
	client := newFakeChainClient(1000)
	client.addBlock(1000, rawTx("0xa1", testWallet, testPeer, 1000, 0))

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	require.NoError(t, state.MarkSynced(context.Background(), testWallet))

	svc := newTestSyncService(client, store, state)
	require.NoError(t, svc.ForceSync(context.Background(), testWallet))

	assert.Positive(t, client.calls, "forced sync must hit the provider even when fresh")
	stored, _ := store.GetByHash(context.Background(), "0xa1")
	assert.NotNil(t, stored)
}

func TestSyncService_FreshnessCheckFailureAssumesStale(t *testing.T) {
	client := newFakeChainClient(1000)
	client.addBlock(1000, rawTx("0xa1", testWallet, testPeer, 1000, 0))

	store := newMemGraphStore()
	state := &faultySyncState{err: apperrors.NewStoreUnavailableError("syncState.fresh", assert.AnError)}
	svc := newTestSyncService(client, store, state)

	// A broken freshness cache must not fail the read path.
	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	assert.Positive(t, client.calls, "unknown freshness must trigger a sync")
	stored, _ := store.GetByHash(context.Background(), "0xa1")
	assert.NotNil(t, stored)
}

func TestSyncService_FreshnessStampFailureKeepsSync(t *testing.T) {
	client := newFakeChainClient(1000)
	client.addBlock(1000, rawTx("0xa1", testWallet, testPeer, 1000, 0))

	store := newMemGraphStore()
	state := &faultySyncState{err: apperrors.NewStoreUnavailableError("syncState.markSynced", assert.AnError)}
	svc := newTestSyncService(client, store, state)

	// Losing the stamp only costs a re-sync on the next read.
	require.NoError(t, svc.Sync(context.Background(), testWallet))

	stored, _ := store.GetByHash(context.Background(), "0xa1")
	assert.NotNil(t, stored)
	assert.Contains(t, store.syncedAt, testWallet, "graph store tracking still recorded")
}

func TestSyncService_MidScanFailureKeepsPartialResults(t *testing.T) {
	client := newFakeChainClient(1000)
	client.addBlock(1000, rawTx("0xa1", testWallet, testPeer, 1000, 0))
	client.blockErr[998] = apperrors.NewRateLimitExceededError("eth_getBlockByNumber", 3)

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	// The newest block landed before the failure.
	stored, _ := store.GetByHash(context.Background(), "0xa1")
	assert.NotNil(t, stored)

	fresh, _ := state.Fresh(context.Background(), testWallet)
	assert.False(t, fresh)
}

func TestSyncService_SkipsMalformedTransaction(t *testing.T) {
	client := newFakeChainClient(1000)
	missingHash := rawTx("", testWallet, testPeer, 1000, 0)
	client.addBlock(1000,
		missingHash,
		rawTx("0xa2", testWallet, testPeer, 1000, 1),
	)

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	rows := store.involving(testWallet)
	require.Len(t, rows, 1)
	assert.Equal(t, "0xa2", rows[0].Hash)
}

func TestSyncService_PacesTransactionFetches(t *testing.T) {
	client := newFakeChainClient(1000)
	client.addBlock(1000,
		rawTx("0xa1", testWallet, testPeer, 1000, 0),
		rawTx("0xa2", testPeer, testWallet, 1000, 1),
		rawTx("0xzz", testPeer, testOther, 1000, 2),
	)

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	var delays []time.Duration
	svc.SetSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	// One pause per involved transaction, none for the bystander.
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestSyncService_QuietAddressSyncsClean(t *testing.T) {
	client := newFakeChainClient(50)
	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	require.NoError(t, svc.EnsureFresh(context.Background(), testWallet))

	rows := store.involving(testWallet)
	assert.Empty(t, rows)

	fresh, _ := state.Fresh(context.Background(), testWallet)
	assert.True(t, fresh, "an address with no activity is still fresh after a scan")
}

func TestSyncService_InvalidAddressRejected(t *testing.T) {
	client := newFakeChainClient(1000)
	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	err := svc.EnsureFresh(context.Background(), "not-an-address")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidAddress))
	assert.Zero(t, client.calls)
}

func TestSyncService_ResolveTransaction(t *testing.T) {
	client := newFakeChainClient(1000)
	raw := rawTx("0xa9", testWallet, testPeer, 995, 3)
	client.txs["0xa9"] = &raw
	client.receipts["0xa9"] = &chain.RawReceipt{
		TransactionHash: "0xa9",
		BlockNumber:     hexUint(995),
		GasUsed:         "0x5208",
		Status:          "0x1",
	}

	store := newMemGraphStore()
	state := storage.NewMemorySyncStateStore(15 * time.Minute)
	svc := newTestSyncService(client, store, state)

	tx, err := svc.ResolveTransaction(context.Background(), "0xa9")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, models.TransactionIndexFor(995, 3), tx.TransactionIndex)
	assert.Equal(t, "21000", tx.GasUsed)

	stored, _ := store.GetByHash(context.Background(), "0xa9")
	assert.NotNil(t, stored, "resolved transaction is persisted")

	missing, err := svc.ResolveTransaction(context.Background(), "0xdead")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
