package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// QuoteRepository persists quotes: immutable, single-use commitments of
// source/destination amounts consumed by at most one outgoing payment.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository creates a new quote repository.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

const quoteColumns = `
	id, wallet_address_id, asset_id, receiver, debit_amount, debit_asset_code,
	debit_asset_scale, receive_amount, receive_asset_code, receive_asset_scale,
	max_packet_amount, min_exchange_rate, low_estimated_exchange_rate,
	high_estimated_exchange_rate, fee_id, expires_at, client, created_at
`

// Create inserts a new quote.
func (r *QuoteRepository) Create(ctx context.Context, quote *entities.Quote) error {
	query := `
		INSERT INTO quotes (
			id, wallet_address_id, asset_id, receiver, debit_amount, debit_asset_code,
			debit_asset_scale, receive_amount, receive_asset_code, receive_asset_scale,
			max_packet_amount, min_exchange_rate, low_estimated_exchange_rate,
			high_estimated_exchange_rate, fee_id, expires_at, client, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	quote.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		quote.ID, quote.WalletAddressID, quote.AssetID, quote.Receiver, quote.DebitAmount, quote.DebitAssetCode,
		quote.DebitAssetScale, quote.ReceiveAmount, quote.ReceiveAssetCode, quote.ReceiveAssetScale,
		quote.MaxPacketAmount, quote.MinExchangeRate, quote.LowEstimatedExchangeRate,
		quote.HighEstimatedExchangeRate, quote.FeeID, quote.ExpiresAt, quote.Client, quote.CreatedAt)
	if err != nil {
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

// GetByID loads a quote by id.
func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Quote, error) {
	var quote entities.Quote
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE id = $1`, quoteColumns)
	if err := sqlx.GetContext(ctx, r.db, &quote, query, id); err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return &quote, nil
}

// ListByWalletAddress returns a page of quotes for a wallet address,
// newest first.
func (r *QuoteRepository) ListByWalletAddress(ctx context.Context, walletAddressID uuid.UUID, limit, offset int) ([]*entities.Quote, error) {
	var quotes []*entities.Quote
	query := fmt.Sprintf(`
		SELECT %s FROM quotes WHERE wallet_address_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, quoteColumns)
	if err := sqlx.SelectContext(ctx, r.db, &quotes, query, walletAddressID, limit, offset); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}
