package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
	"github.com/ilpcore/engine/internal/domain/services/pipeline"
	"github.com/ilpcore/engine/pkg/streamcrypto"
)

// streamSecretResolver recovers a locally-minted destination's shared
// secret so the pay step can compute the same packet condition the
// stream-controller stage will independently re-derive when it fulfills.
// Only local receivers are wired today; a remote receiver resolver would
// implement the same interface from a cached Open Payments grant instead.
type streamSecretResolver interface {
	SharedSecretFor(destination string) (secret [32]byte, incomingPaymentID uuid.UUID, ok bool)
}

// perPacketTimeout bounds how long any one packet attempt is held pending
// before the balance middleware's own expiry would void it regardless.
const perPacketTimeout = 30 * time.Second

// maxPacketsPerStep bounds how many packets one pay-step attempt sends
// before yielding back to the worker loop, so a payment with a very small
// maxPacketAmount cannot monopolize a worker indefinitely.
const maxPacketsPerStep = 1000

// PayStep drives one attempt of a Sending payment to completion, failure,
// or a retryable packet error, sending as many packets as it takes (up to
// maxPacketsPerStep) to exhaust the quote's debit amount.
func (s *Service) PayStep(ctx context.Context, pipe *pipeline.Pipeline, resolver streamSecretResolver, paymentID uuid.UUID) error {
	payment, err := s.outgoingPayments.GetByID(ctx, paymentID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownPayment, "unknown outgoing payment")
	}
	if payment.State != entities.OutgoingPaymentSending {
		return apperrors.KindError(apperrors.KindWrongState, "payment is not in Sending state")
	}

	quote, err := s.quotes.GetByID(ctx, payment.QuoteID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownQuote, "unknown quote")
	}

	wallet, err := s.walletAddresses.GetByID(ctx, payment.WalletAddressID)
	if err != nil {
		return apperrors.KindError(apperrors.KindUnknownWalletAddr, "unknown wallet address")
	}
	if quote.AssetID != wallet.AssetID {
		return s.fail(ctx, payment, apperrors.KindError(apperrors.KindSourceAssetConflict, "payment source asset no longer matches quote"))
	}

	secret, incomingPaymentID, ok := resolver.SharedSecretFor(quote.Receiver)
	if !ok {
		return s.fail(ctx, payment, apperrors.KindError(apperrors.KindReceiverProtocolViolation, "receiver address could not be resolved locally"))
	}

	for i := 0; i < maxPacketsPerStep; i++ {
		remaining := quote.DebitAmount.Sub(payment.SentAmount)
		if !remaining.IsPositive() {
			break
		}

		packetAmount := remaining
		if quote.MaxPacketAmount.IsPositive() && packetAmount.GreaterThan(quote.MaxPacketAmount) {
			packetAmount = quote.MaxPacketAmount
		}

		destinationAmount, rerr := convertWithMinRate(packetAmount, quote)
		if rerr != nil {
			return s.retry(ctx, payment, rerr)
		}

		prepare, perr := buildPrepare(quote.Receiver, packetAmount, incomingPaymentID)
		if perr != nil {
			return s.fail(ctx, payment, apperrors.KindError(apperrors.KindInternalError, "failed to build packet"))
		}
		prepare.ExecutionCondition = conditionFor(secret, prepare)

		incomingAccount := pipeline.AccountRef{
			AccountID:  payment.LedgerAccountID,
			AssetID:    quote.AssetID,
			AssetCode:  quote.DebitAssetCode,
			AssetScale: quote.DebitAssetScale,
		}

		fulfill, reject := pipe.RunFromAccount(ctx, incomingAccount, prepare, destinationAmount)
		if reject != nil {
			return s.handleReject(ctx, payment, reject)
		}
		if fulfill == nil {
			return s.retry(ctx, payment, apperrors.KindError(apperrors.KindConnectorError, "packet returned neither fulfill nor reject"))
		}

		payment.SentAmount = payment.SentAmount.Add(packetAmount)
	}

	if payment.SentAmount.GreaterThanOrEqual(quote.DebitAmount) {
		return s.complete(ctx, payment)
	}

	payment.StateAttempts = 0
	now := time.Now()
	payment.ProcessAt = &now
	if err := s.outgoingPayments.UpdateState(ctx, payment); err != nil {
		return fmt.Errorf("persist partial pay step: %w", err)
	}
	return nil
}

// convertWithMinRate derives the destination-side amount for one packet
// using the quote's low estimated rate, and guards against the delivered
// rate ever falling below minExchangeRate.
func convertWithMinRate(sourceAmount decimal.Decimal, quote *entities.Quote) (decimal.Decimal, error) {
	destinationAmount := sourceAmount.Mul(quote.LowEstimatedExchangeRate)
	if sourceAmount.IsPositive() {
		effectiveRate := destinationAmount.Div(sourceAmount)
		if effectiveRate.LessThan(quote.MinExchangeRate) {
			return decimal.Zero, apperrors.KindError(apperrors.KindInsufficientExchangeRate, "packet rate fell below minimum exchange rate")
		}
	}
	return destinationAmount, nil
}

func buildPrepare(destination string, amount decimal.Decimal, incomingPaymentID uuid.UUID) (*entities.ILPPrepare, error) {
	data, err := randomCorrelationTag()
	if err != nil {
		return nil, err
	}
	return &entities.ILPPrepare{
		Amount:      amount,
		ExpiresAt:   time.Now().Add(perPacketTimeout),
		Destination: destination,
		Data:        data,
	}, nil
}

func randomCorrelationTag() ([]byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("generate packet correlation tag: %w", err)
	}
	return []byte(n.String()), nil
}

// handleReject classifies a packet-level reject as fatal or retryable per
// the pay runtime's error taxonomy and acts accordingly.
func (s *Service) handleReject(ctx context.Context, payment *entities.OutgoingPayment, reject *entities.ILPReject) error {
	kind := apperrors.ErrorKind(reject.Code)
	switch reject.Code {
	case "F05", "F02", "F06", "F08":
		return s.fail(ctx, payment, apperrors.KindError(apperrors.KindReceiverProtocolViolation, reject.Message))
	default:
		return s.retry(ctx, payment, apperrors.KindError(kind, reject.Message))
	}
}

// retry persists the payment's partial progress, bumps its attempt
// counter, and schedules the next attempt under the lifecycle backoff
// policy, or fails the payment once attempts are exhausted.
func (s *Service) retry(ctx context.Context, payment *entities.OutgoingPayment, cause error) error {
	payment.StateAttempts++
	if payment.StateAttempts >= s.config.MaxStateAttempts {
		return s.fail(ctx, payment, cause)
	}
	message := cause.Error()
	payment.Error = &message
	next := time.Now().Add(s.backoff(payment.StateAttempts))
	payment.ProcessAt = &next
	if err := s.outgoingPayments.UpdateState(ctx, payment); err != nil {
		return fmt.Errorf("persist retry state: %w", err)
	}
	return nil
}

// fail transitions the payment to Failed, withdraws any residual balance,
// and enqueues the failed webhook event.
func (s *Service) fail(ctx context.Context, payment *entities.OutgoingPayment, cause error) error {
	message := cause.Error()
	payment.Error = &message
	payment.State = entities.OutgoingPaymentFailed
	payment.ProcessAt = nil
	return s.finishTerminal(ctx, payment, entities.EventOutgoingPaymentFailed)
}

// complete transitions the payment to Completed, withdraws any residual
// balance, and enqueues the completed webhook event.
func (s *Service) complete(ctx context.Context, payment *entities.OutgoingPayment) error {
	payment.State = entities.OutgoingPaymentCompleted
	payment.ProcessAt = nil
	return s.finishTerminal(ctx, payment, entities.EventOutgoingPaymentCompleted)
}

func (s *Service) finishTerminal(ctx context.Context, payment *entities.OutgoingPayment, eventType entities.WebhookEventType) error {
	if err := s.outgoingPayments.UpdateState(ctx, payment); err != nil {
		return fmt.Errorf("persist terminal state: %w", err)
	}

	quote, err := s.quotes.GetByID(ctx, payment.QuoteID)
	if err != nil {
		s.logger.Warn("failed to load quote for terminal withdrawal", "payment_id", payment.ID, "error", err)
		return nil
	}

	var withdrawal *entities.WebhookWithdrawal
	residual := payment.RemainingAmount(quote.DebitAmount)
	if residual.IsPositive() {
		post, _, werr := s.ledger.CreateWithdrawal(ctx, uuid.New(), payment.LedgerAccountID, residual, nil)
		if werr != nil {
			s.logger.Warn("failed to reserve terminal withdrawal", "payment_id", payment.ID, "error", werr)
		} else if perr := post(ctx); perr != nil {
			s.logger.Warn("failed to post terminal withdrawal", "payment_id", payment.ID, "error", perr)
		} else {
			withdrawal = &entities.WebhookWithdrawal{AccountID: payment.LedgerAccountID, AssetID: quote.AssetID, Amount: residual}
		}
	}

	event := &entities.WebhookEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Data:       map[string]any{"id": payment.ID.String(), "sentAmount": payment.SentAmount.String()},
		Withdrawal: withdrawal,
	}
	if err := s.webhookEvents.Create(ctx, event); err != nil {
		s.logger.Warn("failed to enqueue terminal event", "payment_id", payment.ID, "error", err)
	}
	return nil
}

// conditionFor computes the packet's execution condition from the same
// prepare fields the stream-controller stage will hash when it computes
// the matching fulfillment.
func conditionFor(secret [32]byte, prepare *entities.ILPPrepare) [32]byte {
	return streamcrypto.Condition(secret, prepare)
}
