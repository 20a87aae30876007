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

// AssetRepository persists assets: currencies the engine holds liquidity
// in, one settlement ledger account per asset.
type AssetRepository struct {
	db *sqlx.DB
}

// NewAssetRepository creates a new asset repository.
func NewAssetRepository(db *sqlx.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create inserts a new asset, failing with a unique_violation if one
// already exists for (code, scale).
func (r *AssetRepository) Create(ctx context.Context, asset *entities.Asset) error {
	query := `
		INSERT INTO assets (id, code, scale, withdrawal_threshold, ledger_account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.Code, asset.Scale, asset.WithdrawalThreshold, asset.LedgerAccountID, asset.CreatedAt, asset.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("asset already exists for code/scale: %w", err)
	}
	if err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

const assetColumns = `id, code, scale, withdrawal_threshold, ledger_account_id, created_at, updated_at`

// GetByID loads an asset by id.
func (r *AssetRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Asset, error) {
	var asset entities.Asset
	query := fmt.Sprintf(`SELECT %s FROM assets WHERE id = $1`, assetColumns)
	if err := sqlx.GetContext(ctx, r.db, &asset, query, id); err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &asset, nil
}

// GetByCodeAndScale loads an asset by its currency code and scale.
func (r *AssetRepository) GetByCodeAndScale(ctx context.Context, code string, scale int) (*entities.Asset, error) {
	var asset entities.Asset
	query := fmt.Sprintf(`SELECT %s FROM assets WHERE code = $1 AND scale = $2`, assetColumns)
	if err := sqlx.GetContext(ctx, r.db, &asset, query, code, scale); err != nil {
		return nil, fmt.Errorf("get asset by code/scale: %w", err)
	}
	return &asset, nil
}

// UpdateWithdrawalThreshold updates an asset's liquidity withdrawal alert
// threshold.
func (r *AssetRepository) UpdateWithdrawalThreshold(ctx context.Context, id uuid.UUID, threshold *decimal.Decimal) error {
	query := `UPDATE assets SET withdrawal_threshold = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, threshold, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update withdrawal threshold: %w", err)
	}
	return nil
}

// List returns every configured asset.
func (r *AssetRepository) List(ctx context.Context) ([]*entities.Asset, error) {
	var assets []*entities.Asset
	query := fmt.Sprintf(`SELECT %s FROM assets ORDER BY created_at ASC`, assetColumns)
	if err := sqlx.SelectContext(ctx, r.db, &assets, query); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}
