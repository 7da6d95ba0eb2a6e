package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/wallet-explorer/internal/errors"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/types"
)

var addressPattern = regexp.MustCompile("^0x[a-f0-9]{40}$")

// ValidateAddress checks that an address is well-formed after normalization.
func ValidateAddress(address string) error {
	if !addressPattern.MatchString(strings.ToLower(address)) {
		return apperrors.NewInvalidAddressError(address)
	}
	return nil
}

// GraphRepository persists the wallet graph: address nodes and transaction
// edges, both keyed by immutable natural identifiers so every write is an
// idempotent upsert.
type GraphRepository struct {
	db *PostgresDB
}

// NewGraphRepository creates a new graph repository
func NewGraphRepository(db *PostgresDB) *GraphRepository {
	return &GraphRepository{db: db}
}

const transactionColumns = `
	t.hash, s.address, r.address, t.value::text, t.input, t.gas::text,
	COALESCE(t.gas_used::text, ''), t.gas_price::text,
	COALESCE(t.transaction_fee::text, ''), t.block_number, t.transaction_index,
	t.block_hash, t.block_timestamp, t.source, t.blockchain`

// UpsertAddress creates an address node on first reference and returns its
// node id. Re-upserting an existing address is a no-op apart from the id
// lookup.
func (r *GraphRepository) UpsertAddress(ctx context.Context, address string) (int64, error) {
	address = strings.ToLower(address)
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO addresses (address, blockchain)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id
	`

	var id int64
	if err := r.db.Pool().QueryRow(ctx, query, address, string(types.BlockchainEthereum)).Scan(&id); err != nil {
		return 0, apperrors.NewStoreUnavailableError("upsertAddress", err)
	}

	return id, nil
}

// MarkSynced stamps an address as directly queried, making it visible to the
// background refresher. The node is created if the address has no stored
// transactions yet, so quiet addresses are tracked too.
func (r *GraphRepository) MarkSynced(ctx context.Context, address string, at time.Time) error {
	address = strings.ToLower(address)
	if err := ValidateAddress(address); err != nil {
		return err
	}

	query := `
		INSERT INTO addresses (address, blockchain, last_synced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
	`
	if _, err := r.db.Pool().Exec(ctx, query, address, string(types.BlockchainEthereum), at); err != nil {
		return apperrors.NewStoreUnavailableError("markSynced", err)
	}
	return nil
}

// TrackedAddresses returns every address that has been directly queried,
// oldest sync first.
func (r *GraphRepository) TrackedAddresses(ctx context.Context) ([]string, error) {
	query := `
		SELECT address FROM addresses
		WHERE last_synced_at IS NOT NULL
		ORDER BY last_synced_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("trackedAddresses", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, apperrors.NewStoreUnavailableError("trackedAddresses", err)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("trackedAddresses", err)
	}

	return addresses, nil
}

// UpsertTransaction persists a transaction edge between its sender and
// receiver nodes. Matching on hash never creates a duplicate: re-running
// with identical or updated fields converges to one record per hash, with
// only the receipt-derived fields (gas used, fee) filled in lazily. The
// index, value, and endpoints of an existing edge never change.
func (r *GraphRepository) UpsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.Hash == "" {
		return apperrors.NewMalformedTransactionError("missing hash", "")
	}

	senderID, err := r.UpsertAddress(ctx, tx.Sender)
	if err != nil {
		return err
	}
	receiverID, err := r.UpsertAddress(ctx, tx.Receiver)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (
			hash, sender_id, receiver_id, value, input, gas, gas_used,
			gas_price, transaction_fee, block_number, transaction_index,
			block_hash, block_timestamp, source, blockchain
		) VALUES (
			$1, $2, $3, $4::numeric, $5, $6::numeric, NULLIF($7, '')::numeric,
			$8::numeric, NULLIF($9, '')::numeric, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (hash) DO UPDATE SET
			gas_used        = COALESCE(EXCLUDED.gas_used, transactions.gas_used),
			transaction_fee = COALESCE(EXCLUDED.transaction_fee, transactions.transaction_fee)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		strings.ToLower(tx.Hash),
		senderID,
		receiverID,
		zeroIfEmpty(tx.Value),
		tx.Input,
		zeroIfEmpty(tx.Gas),
		tx.GasUsed,
		zeroIfEmpty(tx.GasPrice),
		tx.TransactionFee,
		tx.BlockNumber,
		tx.TransactionIndex,
		strings.ToLower(tx.BlockHash),
		tx.BlockTimestamp,
		string(tx.Source),
		string(tx.Blockchain),
	)
	if err != nil {
		return apperrors.NewStoreUnavailableError("upsertTransaction", err)
	}

	return nil
}

// GetByHash retrieves a transaction by hash, or nil when the store has no
// record of it.
func (r *GraphRepository) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions t
		JOIN addresses s ON s.id = t.sender_id
		JOIN addresses r ON r.id = t.receiver_id
		WHERE t.hash = $1
	`, transactionColumns)

	row := r.db.Pool().QueryRow(ctx, query, strings.ToLower(hash))
	tx, err := scanTransaction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewStoreUnavailableError("getByHash", err)
	}

	return tx, nil
}

// QueryTransactions returns one ordered slice of an address's feed, merging
// its sending and receiving roles. The hash primary key guarantees no
// duplicates within a page.
//
// Semantics per page direction:
//   - initial: newest transactions, index descending
//   - older:   transaction_index < cursor, index descending
//   - newer:   transaction_index > cursor, index ascending (the caller
//     reverses for display)
func (r *GraphRepository) QueryTransactions(ctx context.Context, address string, direction types.PageDirection, cursor int64, limit int) ([]*models.Transaction, error) {
	address = strings.ToLower(address)
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, apperrors.NewInvalidParameterError("direction", string(direction))
	}

	where := `(s.address = $1 OR r.address = $1)`
	order := `ORDER BY t.transaction_index DESC`
	args := []any{address}

	switch direction {
	case types.PageOlder:
		where += ` AND t.transaction_index < $2`
		args = append(args, cursor)
	case types.PageNewer:
		where += ` AND t.transaction_index > $2`
		order = `ORDER BY t.transaction_index ASC`
		args = append(args, cursor)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions t
		JOIN addresses s ON s.id = t.sender_id
		JOIN addresses r ON r.id = t.receiver_id
		WHERE %s
		%s
		LIMIT %d
	`, transactionColumns, where, order, limit)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("queryTransactions", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("queryTransactions", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("queryTransactions", err)
	}

	return transactions, nil
}

// CountFor counts the stored transactions involving an address in either
// role.
func (r *GraphRepository) CountFor(ctx context.Context, address string) (int64, error) {
	address = strings.ToLower(address)
	if err := ValidateAddress(address); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*)
		FROM transactions t
		JOIN addresses s ON s.id = t.sender_id
		JOIN addresses r ON r.id = t.receiver_id
		WHERE s.address = $1 OR r.address = $1
	`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, address).Scan(&count); err != nil {
		return 0, apperrors.NewStoreUnavailableError("countFor", err)
	}

	return count, nil
}

// scanTransaction reads one row in transactionColumns order.
func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	var source, blockchain string

	err := row.Scan(
		&tx.Hash,
		&tx.Sender,
		&tx.Receiver,
		&tx.Value,
		&tx.Input,
		&tx.Gas,
		&tx.GasUsed,
		&tx.GasPrice,
		&tx.TransactionFee,
		&tx.BlockNumber,
		&tx.TransactionIndex,
		&tx.BlockHash,
		&tx.BlockTimestamp,
		&source,
		&blockchain,
	)
	if err != nil {
		return nil, err
	}

	tx.Source = types.Source(source)
	tx.Blockchain = types.Blockchain(blockchain)
	return &tx, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
