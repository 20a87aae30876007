package receivers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/stream"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
)

// Local resolves and creates receivers rooted at this node's own wallet
// address, the counterpart to Remote for the other end of a payment
// this node also happens to host.
type Local struct {
	baseURL         string
	walletAddresses *repositories.WalletAddressRepository
	assets          *repositories.AssetRepository
	incomingPayments *repositories.IncomingPaymentRepository
	stream          *stream.Receiver
}

// NewLocal builds a Local resolver. baseURL is this node's own wallet
// address resource server origin (e.g. "https://ilp.example.com"),
// matched as a prefix against every receiver URL handed to Resolve.
func NewLocal(baseURL string, walletAddresses *repositories.WalletAddressRepository, assets *repositories.AssetRepository, incomingPayments *repositories.IncomingPaymentRepository, streamReceiver *stream.Receiver) *Local {
	return &Local{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		walletAddresses:  walletAddresses,
		assets:           assets,
		incomingPayments: incomingPayments,
		stream:           streamReceiver,
	}
}

// Owns reports whether url is rooted at this node's own wallet address
// space, the prefix match spec.md's receiver resolver keys local
// resolution on.
func (l *Local) Owns(url string) bool {
	return strings.HasPrefix(url, l.baseURL)
}

// Resolve reads an incoming payment referenced either directly
// (".../incoming-payments/{id}") or via its STREAM connection
// (".../connections/{id}") and returns its STREAM credentials without
// a network round trip.
func (l *Local) Resolve(ctx context.Context, url string) (*Resolved, error) {
	id, byConnection, err := parseLocalReceiverURL(l.baseURL, url)
	if err != nil {
		return nil, err
	}

	var payment *entities.IncomingPayment
	if byConnection {
		payment, err = l.incomingPayments.GetByConnectionID(ctx, id)
	} else {
		payment, err = l.incomingPayments.GetByID(ctx, id)
	}
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownIncoming, "unknown incoming payment")
	}

	asset, err := l.assets.GetByID(ctx, payment.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load incoming payment asset: %w", err)
	}

	ilpAddress, sharedSecret := l.stream.EncodeDestination(payment.ID)
	paymentID := payment.ID
	return &Resolved{
		AssetCode:       asset.Code,
		AssetScale:      asset.Scale,
		ILPAddress:      ilpAddress,
		SharedSecret:    sharedSecret,
		IncomingPayment: &paymentID,
		IncomingAmount:  payment.IncomingAmount,
		ReceivedAmount:  &payment.ReceivedAmount,
		ExpiresAt:       &payment.ExpiresAt,
	}, nil
}

// CreateRequest describes a new locally-hosted incoming payment.
type CreateRequest struct {
	WalletAddressID uuid.UUID
	IncomingAmount  *entities.Money
	ExpiresAt       *time.Time
	Metadata        map[string]any
}

// Create provisions a new incoming payment against a wallet address this
// node hosts. It does not mint STREAM credentials; Resolve derives those
// from the stored payment.
func (l *Local) Create(ctx context.Context, req CreateRequest) (*entities.IncomingPayment, error) {
	wallet, err := l.walletAddresses.GetByID(ctx, req.WalletAddressID)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownWalletAddr, "unknown wallet address")
	}
	if !wallet.IsActive(time.Now()) {
		return nil, apperrors.KindError(apperrors.KindInactiveWalletAddr, "wallet address is not active")
	}

	asset, err := l.assets.GetByID(ctx, wallet.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load wallet address asset: %w", err)
	}

	var incomingAmount *decimal.Decimal
	if req.IncomingAmount != nil {
		if req.IncomingAmount.AssetCode != asset.Code || req.IncomingAmount.AssetScale != asset.Scale {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "incoming amount currency does not match wallet address asset")
		}
		if !req.IncomingAmount.Value.IsPositive() {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "incoming amount must be positive")
		}
		incomingAmount = &req.IncomingAmount.Value
	}

	expiresAt := time.Now().Add(defaultIncomingPaymentLifespan)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	payment := &entities.IncomingPayment{
		ID:              uuid.New(),
		WalletAddressID: wallet.ID,
		AssetID:         wallet.AssetID,
		IncomingAmount:  incomingAmount,
		State:           entities.IncomingPaymentPending,
		ExpiresAt:       expiresAt,
		Metadata:        req.Metadata,
	}
	if err := l.incomingPayments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create incoming payment: %w", err)
	}
	return payment, nil
}

const defaultIncomingPaymentLifespan = 24 * time.Hour

func parseLocalReceiverURL(baseURL, url string) (id uuid.UUID, byConnection bool, err error) {
	const connMarker = "/connections/"
	const incomingMarker = "/incoming-payments/"

	if idx := strings.Index(url, connMarker); idx >= 0 {
		id, err = uuid.Parse(url[idx+len(connMarker):])
		return id, true, err
	}
	if idx := strings.Index(url, incomingMarker); idx >= 0 {
		id, err = uuid.Parse(url[idx+len(incomingMarker):])
		return id, false, err
	}
	return uuid.Nil, false, fmt.Errorf("receiver url %q is neither a connection nor an incoming payment reference", url)
}
