package quotes

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/receivers"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
)

// rateProbeEpsilon brackets the estimated exchange rate: highEstimated is
// an exclusive upper bound just above lowEstimated, mirroring the
// numerator/denominator +-1ULP bracket an Open Payments rates probe
// returns instead of a single point rate.
var rateProbeEpsilon = decimal.New(1, -8)

// maxPacketAmount is the network-wide packet ceiling before the packet
// pipeline's peer-specific cap narrows it further.
var maxPacketAmount = decimal.NewFromInt(math.MaxInt64)

// Config bounds quote engine policy not carried by the request itself.
type Config struct {
	QuoteLifespan time.Duration
	Slippage      decimal.Decimal
}

// DefaultConfig returns the quote engine's default lifespan and slippage
// tolerance.
func DefaultConfig() Config {
	return Config{QuoteLifespan: 5 * time.Minute, Slippage: decimal.NewFromFloat(0.01)}
}

// Service computes time-bounded, signed commitments of source amount,
// receive amount, exchange rate bracket, and packet ceiling for a
// prospective outgoing payment.
type Service struct {
	walletAddresses *repositories.WalletAddressRepository
	assets          *repositories.AssetRepository
	quotes          *repositories.QuoteRepository
	fees            *repositories.FeeRepository
	resolver        *receivers.Resolver
	rates           RatesClient
	logger          *logger.Logger
	config          Config
}

// NewService builds the quote engine.
func NewService(
	walletAddresses *repositories.WalletAddressRepository,
	assets *repositories.AssetRepository,
	quotes *repositories.QuoteRepository,
	fees *repositories.FeeRepository,
	resolver *receivers.Resolver,
	rates RatesClient,
	log *logger.Logger,
	config Config,
) *Service {
	return &Service{
		walletAddresses: walletAddresses,
		assets:          assets,
		quotes:          quotes,
		fees:            fees,
		resolver:        resolver,
		rates:           rates,
		logger:          log,
		config:          config,
	}
}

// CreateRequest describes a prospective outgoing payment to price.
type CreateRequest struct {
	WalletAddressID uuid.UUID
	Receiver        string
	DebitAmount     *decimal.Decimal
	ReceiveAmount   *decimal.Decimal
	Client          *string
}

// CreateQuote resolves the receiver, prices one side of the payment from
// the other via the rates service, applies the source asset's sending
// fee, and persists a single-use Quote.
func (s *Service) CreateQuote(ctx context.Context, req CreateRequest) (*entities.Quote, error) {
	if req.DebitAmount != nil && req.ReceiveAmount != nil {
		return nil, apperrors.KindError(apperrors.KindInvalidAmount, "exactly one of debitAmount or receiveAmount may be specified")
	}

	wallet, err := s.walletAddresses.GetByID(ctx, req.WalletAddressID)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownWalletAddr, "unknown wallet address")
	}
	now := time.Now()
	if !wallet.IsActive(now) {
		return nil, apperrors.KindError(apperrors.KindInactiveWalletAddr, "wallet address is not active")
	}

	sourceAsset, err := s.assets.GetByID(ctx, wallet.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load wallet address asset: %w", err)
	}

	resolved, err := s.resolver.Resolve(ctx, req.Receiver)
	if err != nil {
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}
	if resolved == nil || resolved.IsExpired(now) || resolved.IsComplete() {
		return nil, apperrors.KindError(apperrors.KindInvalidReceiver, "receiver is unreachable, expired, or already complete")
	}

	receiveAmount := req.ReceiveAmount
	if req.DebitAmount == nil && req.ReceiveAmount == nil {
		if resolved.IncomingAmount == nil {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "receiver does not expose an incoming amount; debitAmount or receiveAmount must be specified")
		}
		remaining := *resolved.IncomingAmount
		if resolved.ReceivedAmount != nil {
			remaining = remaining.Sub(*resolved.ReceivedAmount)
		}
		receiveAmount = &remaining
	}

	rate, err := s.rates.GetRate(ctx, sourceAsset.Code, resolved.AssetCode)
	if err != nil {
		return nil, fmt.Errorf("query exchange rate: %w", err)
	}
	lowRate := rate
	highRate := rate.Add(rateProbeEpsilon)
	minRate := lowRate.Mul(decimal.NewFromInt(1).Sub(s.config.Slippage))

	fee, err := s.fees.GetLatestByAsset(ctx, sourceAsset.ID, entities.FeeTypeSending)
	if err != nil {
		return nil, fmt.Errorf("load sending fee: %w", err)
	}

	var debitAmount decimal.Decimal
	switch {
	case req.DebitAmount != nil:
		debitAmount = *req.DebitAmount
		if !debitAmount.IsPositive() {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "debitAmount must be positive")
		}
		gross := debitAmount.Mul(lowRate)
		if fee != nil {
			gross = gross.Sub(fee.Apply(gross))
		}
		if !gross.IsPositive() {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "debitAmount is too small to cover the sending fee")
		}
		receiveAmount = &gross

	case receiveAmount != nil:
		if !receiveAmount.IsPositive() {
			return nil, apperrors.KindError(apperrors.KindInvalidAmount, "receiveAmount must be positive")
		}
		debitAmount = receiveAmount.Div(lowRate)
		if fee != nil {
			debitAmount = debitAmount.Add(fee.Apply(debitAmount))
		}

	default:
		return nil, apperrors.KindError(apperrors.KindInvalidAmount, "unable to determine receiveAmount")
	}

	expiresAt := now.Add(s.config.QuoteLifespan)
	if resolved.ExpiresAt != nil && resolved.ExpiresAt.Before(expiresAt) {
		expiresAt = *resolved.ExpiresAt
	}

	var feeID *uuid.UUID
	if fee != nil {
		feeID = &fee.ID
	}

	quote := &entities.Quote{
		ID:                         uuid.New(),
		WalletAddressID:            wallet.ID,
		AssetID:                    sourceAsset.ID,
		Receiver:                   req.Receiver,
		DebitAmount:                debitAmount,
		DebitAssetCode:             sourceAsset.Code,
		DebitAssetScale:            sourceAsset.Scale,
		ReceiveAmount:              *receiveAmount,
		ReceiveAssetCode:           resolved.AssetCode,
		ReceiveAssetScale:          resolved.AssetScale,
		MaxPacketAmount:            maxPacketAmount,
		MinExchangeRate:            minRate,
		LowEstimatedExchangeRate:   lowRate,
		HighEstimatedExchangeRate:  highRate,
		FeeID:                      feeID,
		ExpiresAt:                  expiresAt,
		Client:                     req.Client,
	}
	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	return quote, nil
}
