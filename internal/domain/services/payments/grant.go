package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/domain/entities"
	apperrors "github.com/ilpcore/engine/internal/domain/errors"
)

// validateGrant acquires the grant's row lock and checks the quote's
// amounts against the grant's limits and current interval, summing prior
// usage by the same grant within the active window.
func (s *Service) validateGrant(ctx context.Context, grantID uuid.UUID, limits *entities.GrantLimits, quote *entities.Quote) error {
	tx, err := s.grants.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.grants.LockForCreation(ctx, tx, grantID); err != nil {
		return fmt.Errorf("lock grant: %w", err)
	}

	if limits == nil {
		return tx.Commit()
	}

	if limits.Receiver != nil && *limits.Receiver != quote.Receiver {
		return apperrors.KindError(apperrors.KindInvalidQuote, "quote receiver does not match grant limit")
	}

	now := time.Now()
	windowStart, windowEnd := time.Time{}, now.AddDate(100, 0, 0)
	if limits.Interval != nil {
		interval, perr := entities.ParseRepeatingInterval(*limits.Interval)
		if perr != nil {
			return apperrors.KindErrorf(apperrors.KindInvalidQuote, "invalid grant interval", map[string]interface{}{"interval": *limits.Interval})
		}
		start, end, ok := interval.CurrentWindow(now)
		if !ok {
			return apperrors.KindError(apperrors.KindInsufficientGrant, "grant interval does not cover now")
		}
		windowStart, windowEnd = start, end
	}

	debitSpent, receiveSpent, err := s.outgoingPayments.SumGrantUsage(ctx, grantID, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("sum grant usage: %w", err)
	}
	usage := &entities.GrantUsage{GrantID: grantID.String(), WindowStart: windowStart, WindowEnd: windowEnd, DebitSpent: debitSpent, ReceiveSpent: receiveSpent}

	if limits.DebitAmount != nil {
		if !limits.DebitAmount.SameAsset(quote.DebitMoney()) {
			return apperrors.KindError(apperrors.KindInvalidQuote, "grant debit limit asset does not match quote")
		}
		if err := usage.CheckDebitLimit(quote.DebitAmount, limits.DebitAmount.Value); err != nil {
			return apperrors.KindError(apperrors.KindInsufficientGrant, "quote debit amount exceeds grant limit")
		}
	}
	if limits.ReceiveAmount != nil {
		if !limits.ReceiveAmount.SameAsset(quote.ReceiveMoney()) {
			return apperrors.KindError(apperrors.KindInvalidQuote, "grant receive limit asset does not match quote")
		}
		if err := usage.CheckReceiveLimit(quote.ReceiveAmount, limits.ReceiveAmount.Value); err != nil {
			return apperrors.KindError(apperrors.KindInsufficientGrant, "quote receive amount exceeds grant limit")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant validation: %w", err)
	}
	return nil
}
