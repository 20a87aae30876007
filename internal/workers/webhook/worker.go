// Package webhook runs the outbound webhook dispatcher: claims due events
// under a row lock, POSTs them to the configured endpoint, and retries
// with exponential backoff behind a circuit breaker the way the engine's
// other outbound HTTP adapters guard a flaky downstream.
package webhook

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ilpcore/engine/internal/domain/entities"
	"github.com/ilpcore/engine/internal/infrastructure/httpclient"
	"github.com/ilpcore/engine/internal/infrastructure/repositories"
	"github.com/ilpcore/engine/pkg/logger"
	"github.com/ilpcore/engine/pkg/retry"
)

// otel metric instruments, recorded from the delivery loop the same way the
// teacher's funding_webhook processor paired OTel counters/histograms with
// its delivery loop. The dispatcher does not use the pkg/metrics collectors.
var (
	webhookMeter            = otel.Meter("ilpcore/workers/webhook")
	deliveredCounter, _     = webhookMeter.Int64Counter("webhook_delivered_total", metric.WithDescription("Webhook events delivered successfully"))
	retryCounter, _         = webhookMeter.Int64Counter("webhook_retry_total", metric.WithDescription("Webhook delivery attempts that failed and were rescheduled"))
	abandonedCounter, _     = webhookMeter.Int64Counter("webhook_abandoned_total", metric.WithDescription("Webhook events that exhausted their delivery attempts"))
	dispatchDurationHist, _ = webhookMeter.Float64Histogram("webhook_dispatch_duration_seconds", metric.WithDescription("Webhook POST round-trip duration"))
)

// Config holds worker configuration.
type Config struct {
	URL              string
	CheckInterval    time.Duration
	BatchSize        int
	RequestTimeout   time.Duration
	BackoffSeconds   int
	MaxAttempts      int
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultConfig returns the webhook dispatcher's default configuration.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:              url,
		CheckInterval:    2 * time.Second,
		BatchSize:        20,
		RequestTimeout:   10 * time.Second,
		BackoffSeconds:   10,
		MaxAttempts:      10,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Worker dispatches due webhook events over HTTP.
type Worker struct {
	events *repositories.WebhookEventRepository
	client *httpclient.Client
	config *Config
	logger *logger.Logger
	stopCh chan struct{}
}

// NewWorker creates a new webhook dispatch worker.
func NewWorker(events *repositories.WebhookEventRepository, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig("")
	}

	client := httpclient.New(httpclient.Config{
		BaseURL:          config.URL,
		Timeout:          config.RequestTimeout,
		BreakerName:      "webhook-dispatch",
		BreakerThreshold: config.BreakerThreshold,
		BreakerTimeout:   config.BreakerTimeout,
	}, log)

	return &Worker{
		events: events,
		client: client,
		config: config,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting webhook dispatch worker", "check_interval", w.config.CheckInterval.String(), "url", w.config.URL)

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook dispatch worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("webhook dispatch worker stopped")
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

func (w *Worker) tick(ctx context.Context) {
	tx, err := w.events.BeginTx(ctx)
	if err != nil {
		w.logger.Error("failed to begin webhook claim tx", "error", err)
		return
	}

	due, err := w.events.ClaimDue(ctx, tx, time.Now(), w.config.BatchSize)
	if err != nil {
		tx.Rollback()
		w.logger.Error("failed to claim due webhook events", "error", err)
		return
	}

	for _, event := range due {
		w.dispatch(ctx, event)
	}

	if err := tx.Commit(); err != nil {
		w.logger.Error("failed to commit webhook claim tx", "error", err)
	}
}

// dispatch sends one event, deleting it on success or recording the
// attempt and scheduling a retry (or giving up) on failure.
func (w *Worker) dispatch(ctx context.Context, event *entities.WebhookEvent) {
	start := time.Now()
	statusCode, err := w.post(ctx, event)
	dispatchDurationHist.Record(ctx, time.Since(start).Seconds())

	if err == nil {
		deliveredCounter.Add(ctx, 1)
		if derr := w.events.Delete(ctx, event.ID); derr != nil {
			w.logger.Error("failed to delete delivered webhook event", "event_id", event.ID, "error", derr)
		}
		return
	}

	event.Attempts++
	if event.Attempts >= w.config.MaxAttempts {
		abandonedCounter.Add(ctx, 1)
		w.logger.Error("webhook event exhausted delivery attempts, abandoning", "event_id", event.ID, "type", event.Type, "attempts", event.Attempts, "error", err)
		if rerr := w.events.RecordAttempt(ctx, event.ID, event.Attempts, nil, statusCode); rerr != nil {
			w.logger.Error("failed to record exhausted webhook attempt", "event_id", event.ID, "error", rerr)
		}
		return
	}

	retryCounter.Add(ctx, 1)

	backoff := retry.NewBackoff(retry.LifecyclePolicy(w.config.BackoffSeconds, w.config.MaxAttempts)).Calculate(event.Attempts)
	next := time.Now().Add(backoff)
	w.logger.Warn("webhook delivery failed, scheduling retry", "event_id", event.ID, "attempts", event.Attempts, "next_attempt", next, "error", err)
	if rerr := w.events.RecordAttempt(ctx, event.ID, event.Attempts, &next, statusCode); rerr != nil {
		w.logger.Error("failed to record webhook retry", "event_id", event.ID, "error", rerr)
	}
}

func (w *Worker) post(ctx context.Context, event *entities.WebhookEvent) (*int, error) {
	body := map[string]any{
		"id":         event.ID,
		"type":       event.Type,
		"data":       event.Data,
		"withdrawal": event.Withdrawal,
	}
	status, err := w.client.DoJSON(ctx, "POST", "", nil, body, nil)
	if status == 0 {
		return nil, err
	}
	return &status, err
}
