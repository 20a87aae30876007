// Package accounts adapts the domain repositories (peers, assets, wallet
// addresses, incoming payments) to the packet pipeline's narrow
// PeerRepository/AssetRepository/IncomingPaymentRepository/
// WalletAddressRepository interfaces, providing the lazy ledger-account
// creation the pipeline's account-middleware stage depends on without
// making the ledger package or the infrastructure repositories aware of
// the pipeline that consumes them.
package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
)

// Peers implements pipeline.PeerRepository over the persistence layer.
type Peers struct {
	repo   *repositories.PeerRepository
	assets *repositories.AssetRepository
	ledger *ledger.Service
}

// NewPeers builds a Peers adapter.
func NewPeers(repo *repositories.PeerRepository, assets *repositories.AssetRepository, ledgerSvc *ledger.Service) *Peers {
	return &Peers{repo: repo, assets: assets, ledger: ledgerSvc}
}

// FindByIncomingToken resolves the peer authenticated by an incoming HTTP
// bearer token.
func (p *Peers) FindByIncomingToken(ctx context.Context, token string) (*entities.Peer, error) {
	return p.repo.FindByIncomingToken(ctx, token)
}

// FindByDestination resolves the peer routed to by address-prefix match.
func (p *Peers) FindByDestination(ctx context.Context, destination string) (*entities.Peer, error) {
	return p.repo.FindByDestination(ctx, destination)
}

// EnsureLedgerAccount returns the peer's ledger account, creating one if
// the peer predates the ledger account being wired at creation time.
func (p *Peers) EnsureLedgerAccount(ctx context.Context, peer *entities.Peer) (uuid.UUID, error) {
	if peer.LedgerAccountID != uuid.Nil {
		return peer.LedgerAccountID, nil
	}
	asset, err := p.assets.GetByID(ctx, peer.AssetID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load peer asset: %w", err)
	}
	account, err := p.ledger.CreateLiquidityAccount(ctx, entities.AccountKindPeer, peer.ID, asset.ID, asset.Code, asset.Scale)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create peer liquidity account: %w", err)
	}
	if err := p.repo.UpdateLedgerAccount(ctx, peer.ID, account.ID); err != nil {
		return uuid.Nil, fmt.Errorf("persist peer ledger account: %w", err)
	}
	peer.LedgerAccountID = account.ID
	return account.ID, nil
}

// Assets implements pipeline.AssetRepository over the persistence layer.
type Assets struct {
	repo *repositories.AssetRepository
}

// NewAssets builds an Assets adapter.
func NewAssets(repo *repositories.AssetRepository) *Assets {
	return &Assets{repo: repo}
}

// GetByID loads an asset by id.
func (a *Assets) GetByID(ctx context.Context, id uuid.UUID) (*entities.Asset, error) {
	return a.repo.GetByID(ctx, id)
}

// IncomingPayments implements pipeline.IncomingPaymentRepository over the
// persistence layer.
type IncomingPayments struct {
	repo   *repositories.IncomingPaymentRepository
	assets *repositories.AssetRepository
	ledger *ledger.Service
}

// NewIncomingPayments builds an IncomingPayments adapter.
func NewIncomingPayments(repo *repositories.IncomingPaymentRepository, assets *repositories.AssetRepository, ledgerSvc *ledger.Service) *IncomingPayments {
	return &IncomingPayments{repo: repo, assets: assets, ledger: ledgerSvc}
}

// GetByID loads an incoming payment. The stream-address stage resolves a
// STREAM destination directly to an incoming-payment id, which is the
// payment's own connection id in this engine's STREAM codec.
func (i *IncomingPayments) GetByID(ctx context.Context, id uuid.UUID) (*entities.IncomingPayment, error) {
	return i.repo.GetByID(ctx, id)
}

// EnsureLedgerAccount creates the incoming payment's ledger account on the
// first packet that credits it.
func (i *IncomingPayments) EnsureLedgerAccount(ctx context.Context, payment *entities.IncomingPayment) (uuid.UUID, error) {
	if payment.LedgerAccountID != nil {
		return *payment.LedgerAccountID, nil
	}
	asset, err := i.assets.GetByID(ctx, payment.AssetID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load incoming payment asset: %w", err)
	}
	account, err := i.ledger.CreateLiquidityAccount(ctx, entities.AccountKindIncomingPayment, payment.ID, asset.ID, asset.Code, asset.Scale)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create incoming payment liquidity account: %w", err)
	}
	if err := i.repo.UpdateLedgerAccount(ctx, payment.ID, account.ID); err != nil {
		return uuid.Nil, fmt.Errorf("persist incoming payment ledger account: %w", err)
	}
	payment.LedgerAccountID = &account.ID
	return account.ID, nil
}

// RecordReceived advances the payment's running received amount,
// completing it once it reaches its fixed incoming amount.
func (i *IncomingPayments) RecordReceived(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	payment, err := i.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load incoming payment: %w", err)
	}
	payment.ReceivedAmount = payment.ReceivedAmount.Add(amount)
	state := payment.State
	if payment.IsComplete() {
		state = entities.IncomingPaymentCompleted
	}
	return i.repo.UpdateReceivedAmount(ctx, id, payment.ReceivedAmount, state)
}

// WalletAddresses implements pipeline.WalletAddressRepository over the
// persistence layer.
type WalletAddresses struct {
	repo   *repositories.WalletAddressRepository
	assets *repositories.AssetRepository
	ledger *ledger.Service
}

// NewWalletAddresses builds a WalletAddresses adapter.
func NewWalletAddresses(repo *repositories.WalletAddressRepository, assets *repositories.AssetRepository, ledgerSvc *ledger.Service) *WalletAddresses {
	return &WalletAddresses{repo: repo, assets: assets, ledger: ledgerSvc}
}

// GetByID loads a wallet address by id.
func (w *WalletAddresses) GetByID(ctx context.Context, id uuid.UUID) (*entities.WalletAddress, error) {
	return w.repo.GetByID(ctx, id)
}

// EnsureLedgerAccount creates the wallet address's web-monetization
// ledger account on first credit.
func (w *WalletAddresses) EnsureLedgerAccount(ctx context.Context, wallet *entities.WalletAddress) (uuid.UUID, error) {
	if wallet.HasLedgerAccount() {
		return *wallet.LedgerAccountID, nil
	}
	asset, err := w.assets.GetByID(ctx, wallet.AssetID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load wallet address asset: %w", err)
	}
	account, err := w.ledger.CreateLiquidityAccount(ctx, entities.AccountKindWebMonetization, wallet.ID, asset.ID, asset.Code, asset.Scale)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create wallet address liquidity account: %w", err)
	}
	if err := w.repo.UpdateLedgerAccount(ctx, wallet.ID, account.ID); err != nil {
		return uuid.Nil, fmt.Errorf("persist wallet address ledger account: %w", err)
	}
	wallet.LedgerAccountID = &account.ID
	return account.ID, nil
}
