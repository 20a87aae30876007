// Package wallet_address runs the wallet-address web-monetization worker:
// periodically diffs a wallet address's lifetime received total against
// the amount already reported in prior events and enqueues the delta.
package wallet_address

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
)

// eventInterval is how far out the next event is scheduled after this one
// fires, for wallet addresses that keep receiving.
const eventInterval = 1 * time.Hour

// Config holds worker configuration.
type Config struct {
	CheckInterval time.Duration
	BatchSize     int
}

// DefaultConfig returns the web-monetization worker's default tick cadence.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 1 * time.Minute,
		BatchSize:     100,
	}
}

// Worker emits web-monetization events for wallet addresses due for one.
type Worker struct {
	walletAddresses *repositories.WalletAddressRepository
	webhookEvents   *repositories.WebhookEventRepository
	ledger          *ledger.Service
	interval        time.Duration
	batchSize       int
	logger          *logger.Logger
	stopCh          chan struct{}
}

// NewWorker creates a new wallet-address web-monetization worker.
func NewWorker(walletAddresses *repositories.WalletAddressRepository, webhookEvents *repositories.WebhookEventRepository, ledgerSvc *ledger.Service, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		walletAddresses: walletAddresses,
		webhookEvents:   webhookEvents,
		ledger:          ledgerSvc,
		interval:        config.CheckInterval,
		batchSize:       config.BatchSize,
		logger:          log,
		stopCh:          make(chan struct{}),
	}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting wallet address event worker", "check_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("wallet address event worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("wallet address event worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// RunOnce processes one batch of wallet addresses due for a
// web-monetization event. Exported for manual triggering and tests.
func (w *Worker) RunOnce(ctx context.Context) {
	w.TriggerEvents(ctx, w.batchSize)
}

// TriggerEvents processes up to limit wallet addresses due for a
// web-monetization event, returning how many were processed without error,
// whether or not each one produced an event. The admin API's
// triggerWalletAddressEvents operation calls this directly with an
// operator-supplied limit, independent of the worker's own tick cadence.
func (w *Worker) TriggerEvents(ctx context.Context, limit int) int {
	due, err := w.walletAddresses.ListDueForEvents(ctx, time.Now(), limit)
	if err != nil {
		w.logger.Error("failed to list wallet addresses due for events", "error", err)
		return 0
	}

	emitted := 0
	for _, wallet := range due {
		if err := w.emit(ctx, wallet); err != nil {
			w.logger.Error("failed to emit wallet address event", "wallet_address_id", wallet.ID, "error", err)
			continue
		}
		emitted++
	}
	return emitted
}

func (w *Worker) emit(ctx context.Context, wallet *entities.WalletAddress) error {
	if !wallet.HasLedgerAccount() {
		return nil
	}

	totalReceived, err := w.ledger.GetTotalReceived(ctx, *wallet.LedgerAccountID)
	if err != nil {
		return err
	}

	delta := totalReceived.Sub(wallet.TotalEventsAmount)
	if delta.IsPositive() {
		event := &entities.WebhookEvent{
			ID:   uuid.New(),
			Type: entities.EventWalletAddressWebMonetization,
			Data: map[string]any{
				"id":    wallet.ID.String(),
				"total": totalReceived.String(),
			},
			Withdrawal: &entities.WebhookWithdrawal{
				AccountID: *wallet.LedgerAccountID,
				AssetID:   wallet.AssetID,
				Amount:    delta,
			},
		}
		if err := w.webhookEvents.Create(ctx, event); err != nil {
			w.logger.Warn("failed to enqueue wallet address event", "wallet_address_id", wallet.ID, "error", err)
		}
	}

	next := time.Now().Add(eventInterval)
	return w.walletAddresses.AdvanceEventsAmount(ctx, wallet.ID, totalReceived, &next)
}
