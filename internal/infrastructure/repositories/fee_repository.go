package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// FeeRepository resolves the configured sending/receiving fee for an
// asset, consulted by the quote engine when applying §4.4's fee rule.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository creates a new fee repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const feeColumns = `id, asset_id, type, fixed_fee, basis_point_fee, created_at`

// Create inserts a new fee schedule entry for an asset.
func (r *FeeRepository) Create(ctx context.Context, fee *entities.Fee) error {
	query := `
		INSERT INTO fees (id, asset_id, type, fixed_fee, basis_point_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, fee.ID, fee.AssetID, fee.Type, fee.FixedFee, fee.BasisPointFee, fee.CreatedAt); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// GetLatestByAsset returns the most recently created fee of the given
// type for an asset, or nil if none is configured — the quote engine
// treats an unconfigured fee as a no-op rather than an error.
func (r *FeeRepository) GetLatestByAsset(ctx context.Context, assetID uuid.UUID, feeType entities.FeeType) (*entities.Fee, error) {
	var fee entities.Fee
	query := fmt.Sprintf(`
		SELECT %s FROM fees
		WHERE asset_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, feeColumns)
	err := sqlx.GetContext(ctx, r.db, &fee, query, assetID, feeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest fee: %w", err)
	}
	return &fee, nil
}
