package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Asset identifies a currency the engine holds liquidity in. Every asset
// owns a ledger account of kind AccountKindAsset created at insert time,
// which backs deposits into peer/payment accounts of the same asset.
type Asset struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	Code                string           `json:"code" db:"code"`
	Scale               int              `json:"scale" db:"scale"`
	WithdrawalThreshold *decimal.Decimal `json:"withdrawalThreshold,omitempty" db:"withdrawal_threshold"`
	LedgerAccountID     uuid.UUID        `json:"-" db:"ledger_account_id"`
	CreatedAt           time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time        `json:"updatedAt" db:"updated_at"`
}

// Money pairs a decimal value with the asset it is denominated in, the
// shape exchanged across the Open Payments boundary.
type Money struct {
	Value      decimal.Decimal `json:"value"`
	AssetCode  string          `json:"assetCode"`
	AssetScale int             `json:"assetScale"`
}

// SameAsset reports whether two amounts share an asset code and scale.
func (m Money) SameAsset(other Money) bool {
	return m.AssetCode == other.AssetCode && m.AssetScale == other.AssetScale
}

// Peer is a counterparty on the ILP network, routed to by ILP-address
// prefix match. Every peer owns a ledger account of kind AccountKindPeer.
type Peer struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	AssetID             uuid.UUID       `json:"assetId" db:"asset_id"`
	StaticIlpAddress    string          `json:"staticIlpAddress" db:"static_ilp_address"`
	MaxPacketAmount     *decimal.Decimal `json:"maxPacketAmount,omitempty" db:"max_packet_amount"`
	HTTPIncomingToken   string          `json:"-" db:"http_incoming_token"`
	HTTPOutgoingToken   string          `json:"-" db:"http_outgoing_token"`
	HTTPOutgoingURL     string          `json:"httpOutgoingUrl" db:"http_outgoing_url"`
	LiquidityThreshold  *decimal.Decimal `json:"liquidityThreshold,omitempty" db:"liquidity_threshold"`
	LedgerAccountID     uuid.UUID       `json:"-" db:"ledger_account_id"`
	CreatedAt           time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time       `json:"updatedAt" db:"updated_at"`
}

// MatchesDestination reports whether an ILP destination address is routed
// to this peer, i.e. the peer's static address is a dot-segment prefix of
// the destination.
func (p *Peer) MatchesDestination(destination string) bool {
	prefix := p.StaticIlpAddress
	if destination == prefix {
		return true
	}
	return len(destination) > len(prefix) && destination[:len(prefix)] == prefix && destination[len(prefix)] == '.'
}

// WalletAddress is a user-facing payment-pointer account identifier. Its
// web-monetization ledger account is created lazily on first credit.
type WalletAddress struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	URL               string     `json:"url" db:"url"`
	AssetID           uuid.UUID  `json:"assetId" db:"asset_id"`
	PublicName        *string    `json:"publicName,omitempty" db:"public_name"`
	TotalEventsAmount decimal.Decimal `json:"totalEventsAmount" db:"total_events_amount"`
	ProcessAt         *time.Time `json:"processAt,omitempty" db:"process_at"`
	DeactivatedAt     *time.Time `json:"deactivatedAt,omitempty" db:"deactivated_at"`
	LedgerAccountID   *uuid.UUID `json:"-" db:"ledger_account_id"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether the wallet address accepts new payments: it has
// never been deactivated, or its deactivation is scheduled in the future.
func (w *WalletAddress) IsActive(now time.Time) bool {
	return w.DeactivatedAt == nil || w.DeactivatedAt.After(now)
}

// HasLedgerAccount reports whether the lazy web-monetization account has
// been created yet.
func (w *WalletAddress) HasLedgerAccount() bool {
	return w.LedgerAccountID != nil
}
