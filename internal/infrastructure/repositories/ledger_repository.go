package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// LedgerRepository persists liquidity accounts, transactions and entries.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type ledgerTxKey struct{}

// WithLedgerTx returns a context carrying tx, so that repository calls made
// with it participate in the caller's transaction instead of opening their
// own implicit one. Mirrors the context.WithValue(ctx, "db_tx", tx) pattern
// the ledger service used for one-phase transactions.
func WithLedgerTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, ledgerTxKey{}, tx)
}

func ledgerTxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(ledgerTxKey{}).(*sqlx.Tx)
	return tx, ok
}

// exec resolves the executor a query should run against: the transaction
// stashed in ctx by WithLedgerTx, or the repository's pooled connection.
func (r *LedgerRepository) exec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ledgerTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// BeginTx starts a read-committed transaction for the ledger service to
// drive multi-statement operations (deposits, two-phase transfers) through.
func (r *LedgerRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// ===== Account Operations =====

// CreateAccount inserts a new liquidity account. A unique_violation on
// (kind, ref) signals the account already exists.
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *entities.LedgerAccount) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}

	query := `
		INSERT INTO ledger_accounts (
			id, kind, ref, asset_id, asset_code, asset_scale,
			balance, total_sent, total_received, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.exec(ctx).QueryRowxContext(
		ctx,
		query,
		account.ID,
		account.Kind,
		account.Ref,
		account.AssetID,
		account.AssetCode,
		account.AssetScale,
		account.Balance,
		account.TotalSent,
		account.TotalReceived,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("account already exists: %w", err)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

// GetAccountByID retrieves an account by ID
func (r *LedgerRepository) GetAccountByID(ctx context.Context, accountID uuid.UUID) (*entities.LedgerAccount, error) {
	query := `
		SELECT id, kind, ref, asset_id, asset_code, asset_scale,
		       balance, total_sent, total_received, created_at, updated_at
		FROM ledger_accounts
		WHERE id = $1
	`

	var account entities.LedgerAccount
	err := sqlx.GetContext(ctx, r.exec(ctx), &account, query, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &account, nil
}

// GetAccountByRef retrieves an account by its owning kind and reference ID.
func (r *LedgerRepository) GetAccountByRef(ctx context.Context, kind entities.AccountKind, ref uuid.UUID) (*entities.LedgerAccount, error) {
	query := `
		SELECT id, kind, ref, asset_id, asset_code, asset_scale,
		       balance, total_sent, total_received, created_at, updated_at
		FROM ledger_accounts
		WHERE kind = $1 AND ref = $2
	`

	var account entities.LedgerAccount
	err := sqlx.GetContext(ctx, r.exec(ctx), &account, query, kind, ref)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &account, nil
}

// GetAssetSettlementAccount retrieves the asset's own settlement pool account.
func (r *LedgerRepository) GetAssetSettlementAccount(ctx context.Context, assetID uuid.UUID) (*entities.LedgerAccount, error) {
	return r.GetAccountByRef(ctx, entities.AccountKindAsset, assetID)
}

// UpdateAccountBalance sets an account's running balance. Must only be
// called within the transaction that posts the entries backing it.
func (r *LedgerRepository) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, newBalance decimal.Decimal) error {
	query := `
		UPDATE ledger_accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.exec(ctx).ExecContext(ctx, query, newBalance, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found")
	}

	return nil
}

// UpdateAccountTotals updates the cumulative sent/received counters.
func (r *LedgerRepository) UpdateAccountTotals(ctx context.Context, accountID uuid.UUID, totalSent, totalReceived decimal.Decimal) error {
	query := `
		UPDATE ledger_accounts
		SET total_sent = $1, total_received = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.exec(ctx).ExecContext(ctx, query, totalSent, totalReceived, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("update account totals: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found")
	}
	return nil
}

// ===== Transaction Operations =====

// CreateTransaction creates a new ledger transaction
func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx *entities.LedgerTransaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_transactions (
			id, transaction_type, reference_id, reference_type,
			status, idempotency_key, expires_at, description, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = r.exec(ctx).QueryRowxContext(
		ctx,
		query,
		tx.ID,
		tx.TransactionType,
		tx.ReferenceID,
		tx.ReferenceType,
		tx.Status,
		tx.IdempotencyKey,
		tx.ExpiresAt,
		tx.Description,
		metadataJSON,
		tx.CreatedAt,
	).Scan(&tx.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("transaction with idempotency key already exists: %w", err)
		}
		return fmt.Errorf("create transaction: %w", err)
	}

	return nil
}

type transactionScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row transactionScanner) (*entities.LedgerTransaction, error) {
	var tx entities.LedgerTransaction
	var metadataJSON []byte

	err := row.Scan(
		&tx.ID,
		&tx.TransactionType,
		&tx.ReferenceID,
		&tx.ReferenceType,
		&tx.Status,
		&tx.IdempotencyKey,
		&tx.ExpiresAt,
		&tx.Description,
		&metadataJSON,
		&tx.CreatedAt,
		&tx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &tx, nil
}

const transactionColumns = `
	id, transaction_type, reference_id, reference_type,
	status, idempotency_key, expires_at, description, metadata, created_at, completed_at
`

// GetTransactionByID retrieves a transaction by ID
func (r *LedgerRepository) GetTransactionByID(ctx context.Context, txID uuid.UUID) (*entities.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE id = $1`

	tx, err := scanTransaction(r.exec(ctx).QueryRowxContext(ctx, query, txID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction not found: %w", err)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// GetTransactionByIdempotencyKey retrieves a transaction by idempotency key.
// Returns (nil, nil) when no transaction exists for the key.
func (r *LedgerRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*entities.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE idempotency_key = $1`

	tx, err := scanTransaction(r.exec(ctx).QueryRowxContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return tx, nil
}

// GetPendingTransactionsExpiringBefore returns pending two-phase transfers
// whose timeout has elapsed as of before, for the auto-void sweep.
func (r *LedgerRepository) GetPendingTransactionsExpiringBefore(ctx context.Context, before time.Time, limit int) ([]*entities.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3`

	rows, err := r.exec(ctx).QueryxContext(ctx, query, entities.TransactionStatusPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query expiring transactions: %w", err)
	}
	defer rows.Close()

	var out []*entities.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// UpdateTransactionStatus updates a transaction status
func (r *LedgerRepository) UpdateTransactionStatus(ctx context.Context, txID uuid.UUID, status entities.TransactionStatus) error {
	var completedAt *time.Time
	if status == entities.TransactionStatusCompleted || status == entities.TransactionStatusVoided || status == entities.TransactionStatusFailed {
		now := time.Now()
		completedAt = &now
	}

	query := `
		UPDATE ledger_transactions
		SET status = $1, completed_at = $2
		WHERE id = $3
	`

	result, err := r.exec(ctx).ExecContext(ctx, query, status, completedAt, txID)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction not found")
	}

	return nil
}

// ===== Entry Operations =====

// CreateEntry creates a new ledger entry
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validate entry: %w", err)
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (
			id, transaction_id, account_id, entry_type, amount, asset_code, asset_scale,
			description, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = r.exec(ctx).QueryRowxContext(
		ctx,
		query,
		entry.ID,
		entry.TransactionID,
		entry.AccountID,
		entry.EntryType,
		entry.Amount,
		entry.AssetCode,
		entry.AssetScale,
		entry.Description,
		metadataJSON,
		entry.CreatedAt,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}

	return nil
}

func scanEntryRow(rows *sqlx.Rows) (*entities.LedgerEntry, error) {
	var entry entities.LedgerEntry
	var metadataJSON []byte

	err := rows.Scan(
		&entry.ID,
		&entry.TransactionID,
		&entry.AccountID,
		&entry.EntryType,
		&entry.Amount,
		&entry.AssetCode,
		&entry.AssetScale,
		&entry.Description,
		&metadataJSON,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &entry, nil
}

const entryColumns = `
	id, transaction_id, account_id, entry_type, amount, asset_code, asset_scale,
	description, metadata, created_at
`

// GetEntriesByTransactionID retrieves all entries for a transaction
func (r *LedgerRepository) GetEntriesByTransactionID(ctx context.Context, txID uuid.UUID) ([]*entities.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE transaction_id = $1 ORDER BY created_at`

	rows, err := r.exec(ctx).QueryxContext(ctx, query, txID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEntriesByAccountID retrieves a page of entries for an account, newest first.
func (r *LedgerRepository) GetEntriesByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.exec(ctx).QueryxContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ===== Reconciliation Methods =====

// GetTotalDebitsAndCredits returns the sum of all debits and credits in the ledger
func (r *LedgerRepository) GetTotalDebitsAndCredits(ctx context.Context) (totalDebits, totalCredits decimal.Decimal, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN entry_type = 'debit' THEN amount ELSE 0 END), 0) as total_debits,
			COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE 0 END), 0) as total_credits
		FROM ledger_entries
	`

	var debitsStr, creditsStr string
	err = r.exec(ctx).QueryRowxContext(ctx, query).Scan(&debitsStr, &creditsStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get total debits and credits: %w", err)
	}

	totalDebits, err = decimal.NewFromString(debitsStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse debits: %w", err)
	}

	totalCredits, err = decimal.NewFromString(creditsStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse credits: %w", err)
	}

	return totalDebits, totalCredits, nil
}

// CountOrphanedEntries returns the count of ledger entries without matching transactions
func (r *LedgerRepository) CountOrphanedEntries(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_entries le
		LEFT JOIN ledger_transactions lt ON le.transaction_id = lt.id
		WHERE lt.id IS NULL
	`

	var count int
	err := r.exec(ctx).QueryRowxContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orphaned entries: %w", err)
	}

	return count, nil
}

// CountUnbalancedTransactions returns the number of (transaction, asset
// code) groups, over transactions of any status, whose entries do not
// balance debits against credits (zero while every write goes through
// CreateTransactionRequest.Validate).
func (r *LedgerRepository) CountUnbalancedTransactions(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM (
			SELECT transaction_id
			FROM ledger_entries
			GROUP BY transaction_id, asset_code
			HAVING SUM(CASE WHEN entry_type = 'debit' THEN amount ELSE -amount END) != 0
		) AS unbalanced
	`

	var count int
	err := r.exec(ctx).QueryRowxContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unbalanced transactions: %w", err)
	}

	return count, nil
}

// GetTotalDepositEntries returns the sum of all deposit-related ledger entries
func (r *LedgerRepository) GetTotalDepositEntries(ctx context.Context, assetCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries le
		JOIN ledger_transactions lt ON le.transaction_id = lt.id
		WHERE lt.transaction_type = 'deposit'
		  AND le.entry_type = 'credit'
		  AND le.asset_code = $1
	`

	var totalStr string
	err := r.exec(ctx).QueryRowxContext(ctx, query, assetCode).Scan(&totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get total deposit entries: %w", err)
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse total: %w", err)
	}

	return total, nil
}

// GetTotalWithdrawalEntries returns the sum of all withdrawal-related ledger entries
func (r *LedgerRepository) GetTotalWithdrawalEntries(ctx context.Context, assetCode string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries le
		JOIN ledger_transactions lt ON le.transaction_id = lt.id
		WHERE lt.transaction_type = 'withdrawal'
		  AND le.entry_type = 'debit'
		  AND le.asset_code = $1
	`

	var totalStr string
	err := r.exec(ctx).QueryRowxContext(ctx, query, assetCode).Scan(&totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get total withdrawal entries: %w", err)
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse total: %w", err)
	}

	return total, nil
}
