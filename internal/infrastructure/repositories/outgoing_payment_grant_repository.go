package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OutgoingPaymentGrantRepository persists outgoing payment grants: the
// lock token and accounting anchor shared by every payment created under
// one authorization grant.
type OutgoingPaymentGrantRepository struct {
	db *sqlx.DB
}

// NewOutgoingPaymentGrantRepository creates a new grant repository.
func NewOutgoingPaymentGrantRepository(db *sqlx.DB) *OutgoingPaymentGrantRepository {
	return &OutgoingPaymentGrantRepository{db: db}
}

// LockForCreation inserts the grant row if absent, then selects it
// FOR UPDATE within tx, serializing every payment creation under the same
// grant id behind one row lock as required by spec §4.3/§5.
func (r *OutgoingPaymentGrantRepository) LockForCreation(ctx context.Context, tx *sqlx.Tx, grantID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outgoing_payment_grants (id, created_at) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, grantID, time.Now()); err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}

	var id uuid.UUID
	if err := tx.GetContext(ctx, &id, `SELECT id FROM outgoing_payment_grants WHERE id = $1 FOR UPDATE`, grantID); err != nil {
		return fmt.Errorf("lock grant: %w", err)
	}
	return nil
}

// BeginTx starts a transaction for the grant-locked payment creation flow.
func (r *OutgoingPaymentGrantRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
