// Package payments implements the outgoing-payment lifecycle engine:
// grant-locked creation, the Funding->Sending transition, and the pay
// step that drives one packet at a time through the packet pipeline.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/internal/domain/services/pipeline"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
	"github.com/ilpcore/engine/pkg/retry"
)

// Config bounds lifecycle worker policy not already carried by the
// individual payment rows.
type Config struct {
	RetryBackoffSeconds int
	MaxStateAttempts    int
}

// Service drives outgoing payments through Funding -> Sending ->
// Completed/Failed.
type Service struct {
	outgoingPayments *repositories.OutgoingPaymentRepository
	grants           *repositories.OutgoingPaymentGrantRepository
	quotes           *repositories.QuoteRepository
	walletAddresses  *repositories.WalletAddressRepository
	assets           *repositories.AssetRepository
	webhookEvents    *repositories.WebhookEventRepository
	ledger           *ledger.Service
	pipeline         *pipeline.Pipeline
	logger           *logger.Logger
	config           Config
}

// NewService builds the outgoing-payment lifecycle service.
func NewService(
	outgoingPayments *repositories.OutgoingPaymentRepository,
	grants *repositories.OutgoingPaymentGrantRepository,
	quotes *repositories.QuoteRepository,
	walletAddresses *repositories.WalletAddressRepository,
	assets *repositories.AssetRepository,
	webhookEvents *repositories.WebhookEventRepository,
	ledgerSvc *ledger.Service,
	pipe *pipeline.Pipeline,
	log *logger.Logger,
	config Config,
) *Service {
	return &Service{
		outgoingPayments: outgoingPayments,
		grants:           grants,
		quotes:           quotes,
		walletAddresses:  walletAddresses,
		assets:           assets,
		webhookEvents:    webhookEvents,
		ledger:           ledgerSvc,
		pipeline:         pipe,
		logger:           log,
		config:           config,
	}
}

// CreateRequest describes a new outgoing payment.
type CreateRequest struct {
	WalletAddressID uuid.UUID
	QuoteID         uuid.UUID
	Metadata        map[string]any
	GrantID         *uuid.UUID
	GrantLimits     *entities.GrantLimits
	Client          *string
}

// CreatePayment validates the wallet address and quote, optionally
// serializes against the grant's row lock and checks its limits, and
// inserts the payment in state Funding together with a PaymentCreated
// webhook event, all in one transaction.
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (*entities.OutgoingPayment, error) {
	wallet, err := s.walletAddresses.GetByID(ctx, req.WalletAddressID)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownWalletAddr, "unknown wallet address")
	}
	if !wallet.IsActive(time.Now()) {
		return nil, apperrors.KindError(apperrors.KindInactiveWalletAddr, "wallet address is not active")
	}

	quote, err := s.quotes.GetByID(ctx, req.QuoteID)
	if err != nil {
		return nil, apperrors.KindError(apperrors.KindUnknownQuote, "unknown quote")
	}
	if quote.WalletAddressID != req.WalletAddressID {
		return nil, apperrors.KindError(apperrors.KindInvalidQuote, "quote does not belong to wallet address")
	}
	if quote.IsExpired(time.Now()) {
		return nil, apperrors.KindError(apperrors.KindInvalidQuote, "quote has expired")
	}

	if quote.AssetID != wallet.AssetID {
		return nil, apperrors.KindError(apperrors.KindSourceAssetConflict, "quote asset does not match wallet address asset")
	}

	if req.GrantID != nil {
		if err := s.validateGrant(ctx, *req.GrantID, req.GrantLimits, quote); err != nil {
			return nil, err
		}
	}

	account, err := s.ledger.CreateLiquidityAccount(ctx, entities.AccountKindOutgoingPayment, quote.ID, quote.AssetID, quote.DebitAssetCode, quote.DebitAssetScale)
	if err != nil {
		return nil, fmt.Errorf("create outgoing payment liquidity account: %w", err)
	}

	payment := &entities.OutgoingPayment{
		ID:              quote.ID,
		WalletAddressID: req.WalletAddressID,
		QuoteID:         quote.ID,
		State:           entities.OutgoingPaymentFunding,
		SentAmount:      decimal.Zero,
		GrantID:         req.GrantID,
		Metadata:        req.Metadata,
		Client:          req.Client,
		LedgerAccountID: account.ID,
	}

	if err := s.outgoingPayments.Create(ctx, payment); err != nil {
		return nil, err
	}

	event := &entities.WebhookEvent{
		ID:   uuid.New(),
		Type: entities.EventOutgoingPaymentCreated,
		Data: map[string]any{"id": payment.ID.String(), "walletAddressId": payment.WalletAddressID.String()},
	}
	if err := s.webhookEvents.Create(ctx, event); err != nil {
		s.logger.Warn("failed to enqueue payment created event", "payment_id", payment.ID, "error", err)
	}

	return payment, nil
}

// Fund transitions a payment from Funding to Sending, atomic with a
// ledger deposit of amount into the payment's own account.
func (s *Service) Fund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, transferID uuid.UUID) error {
	payment, err := s.outgoingPayments.GetByID(ctx, id)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownPayment, "unknown outgoing payment")
	}
	if payment.State != entities.OutgoingPaymentFunding {
		return apperrors.KindError(apperrors.KindWrongState, "payment is not in Funding state")
	}

	quote, err := s.quotes.GetByID(ctx, payment.QuoteID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownQuote, "unknown quote")
	}
	if !amount.Equal(quote.DebitAmount) {
		return apperrors.KindError(apperrors.KindInvalidAmount, "funded amount does not match quote debit amount")
	}

	if err := s.ledger.CreateDeposit(ctx, transferID, payment.LedgerAccountID, amount); err != nil {
		return fmt.Errorf("deposit payment funds: %w", err)
	}

	payment.State = entities.OutgoingPaymentSending
	now := time.Now()
	payment.ProcessAt = &now
	return s.outgoingPayments.UpdateState(ctx, payment)
}

// backoff returns the delay before stateAttempts' next retry under the
// lifecycle's fixed backoff policy.
func (s *Service) backoff(attempt int) time.Duration {
	policy := retry.LifecyclePolicy(s.config.RetryBackoffSeconds, s.config.MaxStateAttempts)
	return retry.NewBackoff(policy).Calculate(attempt)
}
