package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ilpcore/engine/internal/domain/entities"
)

// PeerRepository persists peers: counterparties on the ILP network,
// routed to by static ILP-address prefix.
type PeerRepository struct {
	db *sqlx.DB
}

// NewPeerRepository creates a new peer repository.
func NewPeerRepository(db *sqlx.DB) *PeerRepository {
	return &PeerRepository{db: db}
}

const peerColumns = `
	id, asset_id, static_ilp_address, max_packet_amount,
	http_incoming_token, http_outgoing_token, http_outgoing_url,
	liquidity_threshold, ledger_account_id, created_at, updated_at
`

// Create inserts a new peer.
func (r *PeerRepository) Create(ctx context.Context, peer *entities.Peer) error {
	query := `
		INSERT INTO peers (
			id, asset_id, static_ilp_address, max_packet_amount,
			http_incoming_token, http_outgoing_token, http_outgoing_url,
			liquidity_threshold, ledger_account_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now()
	peer.CreatedAt = now
	peer.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		peer.ID, peer.AssetID, peer.StaticIlpAddress, peer.MaxPacketAmount,
		peer.HTTPIncomingToken, peer.HTTPOutgoingToken, peer.HTTPOutgoingURL,
		peer.LiquidityThreshold, peer.LedgerAccountID, peer.CreatedAt, peer.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("peer already exists for static_ilp_address: %w", err)
	}
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}
	return nil
}

// GetByID loads a peer by id.
func (r *PeerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Peer, error) {
	var peer entities.Peer
	query := fmt.Sprintf(`SELECT %s FROM peers WHERE id = $1`, peerColumns)
	if err := sqlx.GetContext(ctx, r.db, &peer, query, id); err != nil {
		return nil, fmt.Errorf("get peer: %w", err)
	}
	return &peer, nil
}

// FindByIncomingToken resolves the peer authenticated by an incoming HTTP
// bearer token, the packet pipeline's account-middleware entry point for
// the incoming side.
func (r *PeerRepository) FindByIncomingToken(ctx context.Context, token string) (*entities.Peer, error) {
	var peer entities.Peer
	query := fmt.Sprintf(`SELECT %s FROM peers WHERE http_incoming_token = $1`, peerColumns)
	if err := sqlx.GetContext(ctx, r.db, &peer, query, token); err != nil {
		return nil, fmt.Errorf("find peer by incoming token: %w", err)
	}
	return &peer, nil
}

// FindByDestination resolves the peer whose static_ilp_address is the
// longest dot-segment prefix of destination. Peer counts in a single
// engine are small enough that scanning every peer and ranking in Go
// (rather than a prefix index) keeps MatchesDestination's match semantics
// in exactly one place.
func (r *PeerRepository) FindByDestination(ctx context.Context, destination string) (*entities.Peer, error) {
	var peers []*entities.Peer
	query := fmt.Sprintf(`SELECT %s FROM peers`, peerColumns)
	if err := sqlx.SelectContext(ctx, r.db, &peers, query); err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	var best *entities.Peer
	for _, p := range peers {
		if !p.MatchesDestination(destination) {
			continue
		}
		if best == nil || len(p.StaticIlpAddress) > len(best.StaticIlpAddress) {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no peer matches destination %s", destination)
	}
	return best, nil
}

// UpdateLedgerAccount sets the peer's ledger account id, once created.
func (r *PeerRepository) UpdateLedgerAccount(ctx context.Context, id, ledgerAccountID uuid.UUID) error {
	query := `UPDATE peers SET ledger_account_id = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, ledgerAccountID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update peer ledger account: %w", err)
	}
	return nil
}

// List returns every configured peer.
func (r *PeerRepository) List(ctx context.Context) ([]*entities.Peer, error) {
	var peers []*entities.Peer
	query := fmt.Sprintf(`SELECT %s FROM peers ORDER BY created_at ASC`, peerColumns)
	if err := sqlx.SelectContext(ctx, r.db, &peers, query); err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return peers, nil
}
