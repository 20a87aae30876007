// Package transfer_sweep runs the ledger's auto-void sweep: periodically
// voids pending two-phase transfers (such as withdrawals) whose
// configured timeout elapsed without a post or a manual void.
package transfer_sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ilpcore/engine/internal/domain/services/ledger"
	"github.com/ilpcore/engine/pkg/logger"
)

// Config holds worker configuration.
type Config struct {
	CheckInterval time.Duration
	BatchSize     int
}

// DefaultConfig returns the sweep worker's default tick cadence.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 60 * time.Second,
		BatchSize:     100,
	}
}

// Worker auto-voids expired pending transfers on a cron schedule, the way
// the teacher's security_cleanup worker drives its own periodic sweeps off
// a robfig/cron.Cron instead of a raw time.Ticker.
type Worker struct {
	ledger    *ledger.Service
	interval  time.Duration
	batchSize int
	logger    *logger.Logger
	cron      *cron.Cron
}

// NewWorker creates a new transfer-sweep worker.
func NewWorker(ledgerSvc *ledger.Service, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		ledger:    ledgerSvc,
		interval:  config.CheckInterval,
		batchSize: config.BatchSize,
		logger:    log,
		cron:      cron.New(),
	}
}

// Start begins the cron-scheduled sweep loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting transfer sweep worker", "check_interval", w.interval.String())

	w.RunOnce(ctx)
	spec := fmt.Sprintf("@every %s", w.interval.String())
	if _, err := w.cron.AddFunc(spec, func() { w.RunOnce(ctx) }); err != nil {
		w.logger.Error("failed to schedule transfer sweep", "error", err)
		return
	}
	w.cron.Start()

	<-ctx.Done()
	w.logger.Info("transfer sweep worker stopped (context cancelled)")
	w.cron.Stop()
}

// Stop stops the worker's cron schedule.
func (w *Worker) Stop() {
	w.cron.Stop()
}

// RunOnce voids one batch of expired pending transfers. Exported for
// manual triggering and tests.
func (w *Worker) RunOnce(ctx context.Context) {
	voided, err := w.ledger.ExpirePendingTransfers(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to sweep expired transfers", "error", err)
		return
	}
	if voided > 0 {
		w.logger.Info("auto-voided expired transfers", "count", voided)
	}
}
