package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// OutgoingPaymentRepository persists outgoing payments: the funded sends
// the lifecycle engine and worker drive toward a quote's receiver.
type OutgoingPaymentRepository struct {
	db *sqlx.DB
}

// NewOutgoingPaymentRepository creates a new outgoing payment repository.
func NewOutgoingPaymentRepository(db *sqlx.DB) *OutgoingPaymentRepository {
	return &OutgoingPaymentRepository{db: db}
}

type outgoingPaymentRow struct {
	ID              uuid.UUID                    `db:"id"`
	WalletAddressID uuid.UUID                    `db:"wallet_address_id"`
	QuoteID         uuid.UUID                    `db:"quote_id"`
	State           entities.OutgoingPaymentState `db:"state"`
	SentAmount      decimal.Decimal              `db:"sent_amount"`
	StateAttempts   int                          `db:"state_attempts"`
	Error           *string                      `db:"error"`
	PeerID          *uuid.UUID                   `db:"peer_id"`
	GrantID         *uuid.UUID                   `db:"grant_id"`
	Metadata        []byte                       `db:"metadata"`
	Client          *string                      `db:"client"`
	ProcessAt       *time.Time                   `db:"process_at"`
	LedgerAccountID uuid.UUID                    `db:"ledger_account_id"`
	CreatedAt       time.Time                    `db:"created_at"`
	UpdatedAt       time.Time                    `db:"updated_at"`
}

func (row *outgoingPaymentRow) toEntity() (*entities.OutgoingPayment, error) {
	p := &entities.OutgoingPayment{
		ID:              row.ID,
		WalletAddressID: row.WalletAddressID,
		QuoteID:         row.QuoteID,
		State:           row.State,
		SentAmount:      row.SentAmount,
		StateAttempts:   row.StateAttempts,
		Error:           row.Error,
		PeerID:          row.PeerID,
		GrantID:         row.GrantID,
		Client:          row.Client,
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

const outgoingPaymentColumns = `
	id, wallet_address_id, quote_id, state, sent_amount, state_attempts,
	error, peer_id, grant_id, metadata, client, process_at,
	ledger_account_id, created_at, updated_at
`

// Create inserts a new outgoing payment in state Funding. A unique
// violation on quote_id enforces the consumed-quote invariant: each quote
// may back at most one outgoing payment.
func (r *OutgoingPaymentRepository) Create(ctx context.Context, payment *entities.OutgoingPayment) error {
	var metadataJSON []byte
	if payment.Metadata != nil {
		b, err := json.Marshal(payment.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = b
	}

	query := `
		INSERT INTO outgoing_payments (
			id, wallet_address_id, quote_id, state, sent_amount, state_attempts,
			error, peer_id, grant_id, metadata, client, process_at,
			ledger_account_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.WalletAddressID, payment.QuoteID, payment.State, payment.SentAmount, payment.StateAttempts,
		payment.Error, payment.PeerID, payment.GrantID, metadataJSON, payment.Client, payment.ProcessAt,
		payment.LedgerAccountID, payment.CreatedAt, payment.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("quote already consumed by another outgoing payment: %w", err)
	}
	if err != nil {
		return fmt.Errorf("create outgoing payment: %w", err)
	}
	return nil
}

// GetByID loads an outgoing payment by id.
func (r *OutgoingPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.OutgoingPayment, error) {
	var row outgoingPaymentRow
	query := fmt.Sprintf(`SELECT %s FROM outgoing_payments WHERE id = $1`, outgoingPaymentColumns)
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		return nil, fmt.Errorf("get outgoing payment: %w", err)
	}
	return row.toEntity()
}

// UpdateState persists a full state transition: new state, sent amount,
// attempt counter, last error, and next processAt.
func (r *OutgoingPaymentRepository) UpdateState(ctx context.Context, payment *entities.OutgoingPayment) error {
	query := `
		UPDATE outgoing_payments
		SET state = $1, sent_amount = $2, state_attempts = $3, error = $4, process_at = $5, updated_at = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query,
		payment.State, payment.SentAmount, payment.StateAttempts, payment.Error, payment.ProcessAt, time.Now(), payment.ID)
	if err != nil {
		return fmt.Errorf("update outgoing payment state: %w", err)
	}
	return nil
}

// ClaimDue claims one outgoing payment whose process_at has elapsed using
// SELECT ... FOR UPDATE SKIP LOCKED, inside tx, which the caller commits
// once the pay step and its state update have both been applied — the
// lock is held for the whole step, matching the spec's worker claim
// semantics.
func (r *OutgoingPaymentRepository) ClaimDue(ctx context.Context, tx *sqlx.Tx, before time.Time) (*entities.OutgoingPayment, error) {
	var row outgoingPaymentRow
	query := fmt.Sprintf(`
		SELECT %s FROM outgoing_payments
		WHERE state IN ('Funding', 'Sending') AND process_at IS NOT NULL AND process_at <= $1
		ORDER BY process_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, outgoingPaymentColumns)
	if err := sqlx.GetContext(ctx, tx, &row, query, before); err != nil {
		return nil, err
	}
	return row.toEntity()
}

// ListByWalletAddress returns a page of outgoing payments for a wallet
// address, newest first.
func (r *OutgoingPaymentRepository) ListByWalletAddress(ctx context.Context, walletAddressID uuid.UUID, limit, offset int) ([]*entities.OutgoingPayment, error) {
	var rows []outgoingPaymentRow
	query := fmt.Sprintf(`
		SELECT %s FROM outgoing_payments WHERE wallet_address_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, outgoingPaymentColumns)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, walletAddressID, limit, offset); err != nil {
		return nil, fmt.Errorf("list outgoing payments: %w", err)
	}
	payments := make([]*entities.OutgoingPayment, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity()
		if err != nil {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// SumGrantUsage sums debitAmount/receiveAmount (via sent_amount for
// Failed partial sends, per spec) over every payment sharing grantID in
// the given window, for grant-limit enforcement at creation time.
func (r *OutgoingPaymentRepository) SumGrantUsage(ctx context.Context, grantID uuid.UUID, windowStart, windowEnd time.Time) (debitSpent, sentSpent decimal.Decimal, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN p.state = 'Failed' THEN p.sent_amount ELSE q.debit_amount END), 0),
			COALESCE(SUM(CASE WHEN p.state = 'Failed' THEN p.sent_amount * q.receive_amount / NULLIF(q.debit_amount, 0) ELSE q.receive_amount END), 0)
		FROM outgoing_payments p
		JOIN quotes q ON q.id = p.quote_id
		WHERE p.grant_id = $1 AND p.created_at >= $2 AND p.created_at < $3
	`
	if err := r.db.QueryRowxContext(ctx, query, grantID, windowStart, windowEnd).Scan(&debitSpent, &sentSpent); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum grant usage: %w", err)
	}
	return debitSpent, sentSpent, nil
}

// BeginTx starts a transaction for the outgoing payment worker's claim-step-commit cycle.
func (r *OutgoingPaymentRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
