package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// WalletAddressRepository persists wallet addresses: user-facing payment
// pointers, each lazily owning a web-monetization ledger account.
type WalletAddressRepository struct {
	db *sqlx.DB
}

// NewWalletAddressRepository creates a new wallet address repository.
func NewWalletAddressRepository(db *sqlx.DB) *WalletAddressRepository {
	return &WalletAddressRepository{db: db}
}

const walletAddressColumns = `
	id, url, asset_id, public_name, total_events_amount,
	process_at, deactivated_at, ledger_account_id, created_at, updated_at
`

// Create inserts a new wallet address.
func (r *WalletAddressRepository) Create(ctx context.Context, wallet *entities.WalletAddress) error {
	query := `
		INSERT INTO wallet_addresses (
			id, url, asset_id, public_name, total_events_amount,
			process_at, deactivated_at, ledger_account_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	if wallet.TotalEventsAmount.IsZero() {
		wallet.TotalEventsAmount = decimal.Zero
	}

	_, err := r.db.ExecContext(ctx, query,
		wallet.ID, wallet.URL, wallet.AssetID, wallet.PublicName, wallet.TotalEventsAmount,
		wallet.ProcessAt, wallet.DeactivatedAt, wallet.LedgerAccountID, wallet.CreatedAt, wallet.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("wallet address already exists for url: %w", err)
	}
	if err != nil {
		return fmt.Errorf("create wallet address: %w", err)
	}
	return nil
}

// GetByID loads a wallet address by id.
func (r *WalletAddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WalletAddress, error) {
	var wallet entities.WalletAddress
	query := fmt.Sprintf(`SELECT %s FROM wallet_addresses WHERE id = $1`, walletAddressColumns)
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, id); err != nil {
		return nil, fmt.Errorf("get wallet address: %w", err)
	}
	return &wallet, nil
}

// GetByURL loads a wallet address by its payment-pointer URL, the entry
// point for SPSP and Open Payments resolution.
func (r *WalletAddressRepository) GetByURL(ctx context.Context, url string) (*entities.WalletAddress, error) {
	var wallet entities.WalletAddress
	query := fmt.Sprintf(`SELECT %s FROM wallet_addresses WHERE url = $1`, walletAddressColumns)
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, url); err != nil {
		return nil, fmt.Errorf("get wallet address by url: %w", err)
	}
	return &wallet, nil
}

// UpdateLedgerAccount sets the wallet address's lazily-created
// web-monetization ledger account id.
func (r *WalletAddressRepository) UpdateLedgerAccount(ctx context.Context, id, ledgerAccountID uuid.UUID) error {
	query := `UPDATE wallet_addresses SET ledger_account_id = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, ledgerAccountID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update wallet address ledger account: %w", err)
	}
	return nil
}

// Deactivate schedules (or immediately performs, if at is in the past) a
// wallet address's deactivation.
func (r *WalletAddressRepository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE wallet_addresses SET deactivated_at = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivate wallet address: %w", err)
	}
	return nil
}

// AdvanceEventsAmount advances total_events_amount and sets process_at to
// nextProcessAt,
// called by the wallet-address worker after enqueuing a web-monetization
// event for the delta between totalReceived and the previous
// total_events_amount.
func (r *WalletAddressRepository) AdvanceEventsAmount(ctx context.Context, id uuid.UUID, newTotal decimal.Decimal, nextProcessAt *time.Time) error {
	query := `UPDATE wallet_addresses SET total_events_amount = $1, process_at = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, newTotal, nextProcessAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("advance wallet address events amount: %w", err)
	}
	return nil
}

// ListDueForEvents returns wallet addresses whose process_at has elapsed,
// claimed with FOR UPDATE SKIP LOCKED so concurrent workers never double-fire.
func (r *WalletAddressRepository) ListDueForEvents(ctx context.Context, before time.Time, limit int) ([]*entities.WalletAddress, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT %s FROM wallet_addresses
		WHERE process_at IS NOT NULL AND process_at <= $1
		ORDER BY process_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, walletAddressColumns)

	var wallets []*entities.WalletAddress
	if err := sqlx.SelectContext(ctx, tx, &wallets, query, before, limit); err != nil {
		return nil, fmt.Errorf("claim due wallet addresses: %w", err)
	}
	return wallets, tx.Commit()
}
