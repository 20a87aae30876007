// Package incoming_expiry runs the incoming-payment expiry worker: moves
// Pending/Processing incoming payments whose deadline has passed to
// Expired and enqueues their expiry event.
package incoming_expiry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
)

// Config holds worker configuration.
type Config struct {
	CheckInterval time.Duration
	BatchSize     int
}

// DefaultConfig returns the expiry worker's default tick cadence.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 30 * time.Second,
		BatchSize:     100,
	}
}

// Worker expires overdue incoming payments.
type Worker struct {
	payments      *repositories.IncomingPaymentRepository
	webhookEvents *repositories.WebhookEventRepository
	interval      time.Duration
	batchSize     int
	logger        *logger.Logger
	stopCh        chan struct{}
}

// NewWorker creates a new incoming-payment expiry worker.
func NewWorker(payments *repositories.IncomingPaymentRepository, webhookEvents *repositories.WebhookEventRepository, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		payments:      payments,
		webhookEvents: webhookEvents,
		interval:      config.CheckInterval,
		batchSize:     config.BatchSize,
		logger:        log,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting incoming payment expiry worker", "check_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("incoming payment expiry worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("incoming payment expiry worker stopped")
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

// RunOnce expires one batch of overdue incoming payments. Exported for
// manual triggering and tests.
func (w *Worker) RunOnce(ctx context.Context) {
	expiring, err := w.payments.ListExpiring(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to list expiring incoming payments", "error", err)
		return
	}

	for _, payment := range expiring {
		if err := w.expire(ctx, payment); err != nil {
			w.logger.Error("failed to expire incoming payment", "payment_id", payment.ID, "error", err)
		}
	}
}

func (w *Worker) expire(ctx context.Context, payment *entities.IncomingPayment) error {
	if err := w.payments.UpdateState(ctx, payment.ID, entities.IncomingPaymentExpired); err != nil {
		return err
	}

	event := &entities.WebhookEvent{
		ID:   uuid.New(),
		Type: entities.EventIncomingPaymentExpired,
		Data: map[string]any{
			"id":             payment.ID.String(),
			"receivedAmount": payment.ReceivedAmount.String(),
		},
	}
	if err := w.webhookEvents.Create(ctx, event); err != nil {
		w.logger.Warn("failed to enqueue incoming payment expired event", "payment_id", payment.ID, "error", err)
	}
	return nil
}
