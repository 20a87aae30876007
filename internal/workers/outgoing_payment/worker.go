// Package outgoing_payment runs the outgoing-payment lifecycle worker:
// each tick claims due payments one at a time, up to BatchSize, each under
// SELECT ... FOR UPDATE SKIP LOCKED in its own transaction, drives one pay
// step for it, and releases the lock on commit.
package outgoing_payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/domain/services/payments"
	"github.com/ilpcore/engine/internal/domain/services/pipeline"
	"github.com/ilpcore/engine/internal/domain/services/stream"
	"github.com/ilpcore/engine/pkg/logger"
)

// ClaimRepository claims outgoing payments under a row lock held for the
// whole pay step.
type ClaimRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	ClaimDue(ctx context.Context, tx *sqlx.Tx, before time.Time) (*entities.OutgoingPayment, error)
}

// QuoteRepository resolves the quote backing a claimed payment, to read
// the funded amount for payments still in the Funding state.
type QuoteRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Quote, error)
}

// Config holds worker configuration.
type Config struct {
	CheckInterval time.Duration
	BatchSize     int
}

// DefaultConfig returns the lifecycle worker's default tick cadence.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 1 * time.Second,
		BatchSize:     10,
	}
}

// Worker drives outgoing payments through the lifecycle engine.
type Worker struct {
	claims    ClaimRepository
	quotes    QuoteRepository
	lifecycle *payments.Service
	pipeline  *pipeline.Pipeline
	resolver  *stream.Receiver
	interval  time.Duration
	batchSize int
	logger    *logger.Logger
	stopCh    chan struct{}
}

// NewWorker creates a new outgoing-payment lifecycle worker.
func NewWorker(claims ClaimRepository, quotes QuoteRepository, lifecycle *payments.Service, pipe *pipeline.Pipeline, resolver *stream.Receiver, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		claims:    claims,
		quotes:    quotes,
		lifecycle: lifecycle,
		pipeline:  pipe,
		resolver:  resolver,
		interval:  config.CheckInterval,
		batchSize: config.BatchSize,
		logger:    log,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting outgoing payment worker", "check_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outgoing payment worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("outgoing payment worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// tick claims up to batchSize due payments, one pay step each, each inside
// its own claim transaction.
func (w *Worker) tick(ctx context.Context) {
	for i := 0; i < w.batchSize; i++ {
		claimed, err := w.claimAndPay(ctx)
		if err != nil {
			w.logger.Error("outgoing payment pay step failed", "error", err)
			continue
		}
		if !claimed {
			return
		}
	}
}

func (w *Worker) claimAndPay(ctx context.Context) (bool, error) {
	tx, err := w.claims.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("begin claim tx: %w", err)
	}

	payment, err := w.claims.ClaimDue(ctx, tx, time.Now())
	if err != nil {
		tx.Rollback()
		return false, nil
	}

	if payment.State == entities.OutgoingPaymentFunding {
		quote, qerr := w.quotes.GetByID(ctx, payment.QuoteID)
		if qerr != nil {
			tx.Rollback()
			return true, fmt.Errorf("load quote for funding %s: %w", payment.ID, qerr)
		}
		if ferr := w.lifecycle.Fund(ctx, payment.ID, quote.DebitAmount, uuid.New()); ferr != nil {
			tx.Rollback()
			return true, fmt.Errorf("fund payment %s: %w", payment.ID, ferr)
		}
	} else if perr := w.lifecycle.PayStep(ctx, w.pipeline, w.resolver, payment.ID); perr != nil {
		tx.Rollback()
		return true, fmt.Errorf("pay step %s: %w", payment.ID, perr)
	}

	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("commit claim tx: %w", err)
	}
	return true, nil
}
