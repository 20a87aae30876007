package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// IncomingPaymentRepository persists incoming payments: inbound STREAM
// credit targets toward a wallet address.
type IncomingPaymentRepository struct {
	db *sqlx.DB
}

// NewIncomingPaymentRepository creates a new incoming payment repository.
func NewIncomingPaymentRepository(db *sqlx.DB) *IncomingPaymentRepository {
	return &IncomingPaymentRepository{db: db}
}

type incomingPaymentRow struct {
	ID              uuid.UUID                    `db:"id"`
	WalletAddressID uuid.UUID                    `db:"wallet_address_id"`
	AssetID         uuid.UUID                    `db:"asset_id"`
	IncomingAmount  *decimal.Decimal             `db:"incoming_amount"`
	ReceivedAmount  decimal.Decimal              `db:"received_amount"`
	State           entities.IncomingPaymentState `db:"state"`
	ExpiresAt       time.Time                    `db:"expires_at"`
	ConnectionID    *uuid.UUID                   `db:"connection_id"`
	Metadata        []byte                       `db:"metadata"`
	ProcessAt       *time.Time                   `db:"process_at"`
	LedgerAccountID *uuid.UUID                   `db:"ledger_account_id"`
	CreatedAt       time.Time                    `db:"created_at"`
	UpdatedAt       time.Time                    `db:"updated_at"`
}

func (row *incomingPaymentRow) toEntity() (*entities.IncomingPayment, error) {
	p := &entities.IncomingPayment{
		ID:              row.ID,
		WalletAddressID: row.WalletAddressID,
		AssetID:         row.AssetID,
		IncomingAmount:  row.IncomingAmount,
		ReceivedAmount:  row.ReceivedAmount,
		State:           row.State,
		ExpiresAt:       row.ExpiresAt,
		ConnectionID:    row.ConnectionID,
		ProcessAt:       row.ProcessAt,
		LedgerAccountID: row.LedgerAccountID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}

func fromEntity(p *entities.IncomingPayment) (*incomingPaymentRow, error) {
	var metadataJSON []byte
	if p.Metadata != nil {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = b
	}
	return &incomingPaymentRow{
		ID:              p.ID,
		WalletAddressID: p.WalletAddressID,
		AssetID:         p.AssetID,
		IncomingAmount:  p.IncomingAmount,
		ReceivedAmount:  p.ReceivedAmount,
		State:           p.State,
		ExpiresAt:       p.ExpiresAt,
		ConnectionID:    p.ConnectionID,
		Metadata:        metadataJSON,
		ProcessAt:       p.ProcessAt,
		LedgerAccountID: p.LedgerAccountID,
	}, nil
}

const incomingPaymentColumns = `
	id, wallet_address_id, asset_id, incoming_amount, received_amount,
	state, expires_at, connection_id, metadata, process_at,
	ledger_account_id, created_at, updated_at
`

// Create inserts a new incoming payment.
func (r *IncomingPaymentRepository) Create(ctx context.Context, payment *entities.IncomingPayment) error {
	row, err := fromEntity(payment)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO incoming_payments (
			id, wallet_address_id, asset_id, incoming_amount, received_amount,
			state, expires_at, connection_id, metadata, process_at,
			ledger_account_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, query,
		row.ID, row.WalletAddressID, row.AssetID, row.IncomingAmount, row.ReceivedAmount,
		row.State, row.ExpiresAt, row.ConnectionID, row.Metadata, row.ProcessAt,
		row.LedgerAccountID, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create incoming payment: %w", err)
	}
	return nil
}

// GetByID loads an incoming payment by id.
func (r *IncomingPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.IncomingPayment, error) {
	var row incomingPaymentRow
	query := fmt.Sprintf(`SELECT %s FROM incoming_payments WHERE id = $1`, incomingPaymentColumns)
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		return nil, fmt.Errorf("get incoming payment: %w", err)
	}
	return row.toEntity()
}

// GetByConnectionID loads an incoming payment by its STREAM connection id,
// the lookup the stream-address pipeline stage ultimately resolves to.
func (r *IncomingPaymentRepository) GetByConnectionID(ctx context.Context, connectionID uuid.UUID) (*entities.IncomingPayment, error) {
	var row incomingPaymentRow
	query := fmt.Sprintf(`SELECT %s FROM incoming_payments WHERE connection_id = $1`, incomingPaymentColumns)
	if err := sqlx.GetContext(ctx, r.db, &row, query, connectionID); err != nil {
		return nil, fmt.Errorf("get incoming payment by connection: %w", err)
	}
	return row.toEntity()
}

// UpdateLedgerAccount sets the incoming payment's lazily-created ledger
// account id.
func (r *IncomingPaymentRepository) UpdateLedgerAccount(ctx context.Context, id, ledgerAccountID uuid.UUID) error {
	query := `UPDATE incoming_payments SET ledger_account_id = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, ledgerAccountID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update incoming payment ledger account: %w", err)
	}
	return nil
}

// UpdateReceivedAmount writes received_amount together with newState; the
// caller decides whether the payment has reached Completed.
func (r *IncomingPaymentRepository) UpdateReceivedAmount(ctx context.Context, id uuid.UUID, newReceived decimal.Decimal, newState entities.IncomingPaymentState) error {
	query := `UPDATE incoming_payments SET received_amount = $1, state = $2, updated_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, newReceived, newState, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update incoming payment received amount: %w", err)
	}
	return nil
}

// UpdateState transitions an incoming payment's lifecycle state, used by
// the incoming-payment timer worker to move Pending/Processing payments
// to Expired.
func (r *IncomingPaymentRepository) UpdateState(ctx context.Context, id uuid.UUID, state entities.IncomingPaymentState) error {
	query := `UPDATE incoming_payments SET state = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, state, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update incoming payment state: %w", err)
	}
	return nil
}

// ListExpiring returns non-terminal incoming payments whose expiry has
// elapsed, claimed with FOR UPDATE SKIP LOCKED for the timer worker.
func (r *IncomingPaymentRepository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*entities.IncomingPayment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT %s FROM incoming_payments
		WHERE state IN ('Pending', 'Processing') AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, incomingPaymentColumns)

	var rows []incomingPaymentRow
	if err := sqlx.SelectContext(ctx, tx, &rows, query, before, limit); err != nil {
		return nil, fmt.Errorf("claim expiring incoming payments: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	payments := make([]*entities.IncomingPayment, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity()
		if err != nil {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// ListByWalletAddress returns a page of incoming payments for a wallet
// address, newest first.
func (r *IncomingPaymentRepository) ListByWalletAddress(ctx context.Context, walletAddressID uuid.UUID, limit, offset int) ([]*entities.IncomingPayment, error) {
	var rows []incomingPaymentRow
	query := fmt.Sprintf(`
		SELECT %s FROM incoming_payments
		WHERE wallet_address_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, incomingPaymentColumns)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, walletAddressID, limit, offset); err != nil {
		return nil, fmt.Errorf("list incoming payments: %w", err)
	}

	payments := make([]*entities.IncomingPayment, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity()
		if err != nil {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}
