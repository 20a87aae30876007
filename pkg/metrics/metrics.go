// Package metrics declares the engine's Prometheus collectors against the
// default registry. No other package imports it, so nothing records to
// these collectors, and the admin HTTP surface serves no /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseConnectionsGauge tracks the Postgres pool's open/idle/in_use
	// connection counts.
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ilpcore",
		Name:      "database_connections",
		Help:      "Database connection pool state.",
	}, []string{"state"})

	// PacketsProcessedTotal counts packets the pipeline has handled, by
	// outcome (fulfilled, rejected) and reject code when applicable.
	PacketsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "packets_processed_total",
		Help:      "ILP packets processed by the pipeline.",
	}, []string{"outcome", "code"})

	// PacketProcessingDuration measures pipeline latency per packet.
	PacketProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ilpcore",
		Name:      "packet_processing_duration_seconds",
		Help:      "Time spent processing a single ILP packet through the pipeline.",
		Buckets:   prometheus.DefBuckets,
	})

	// OutgoingPaymentsTotal counts lifecycle worker transitions by
	// resulting state (Completed, Failed).
	OutgoingPaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "outgoing_payments_total",
		Help:      "Outgoing payments reaching a terminal state.",
	}, []string{"state"})

	// OutgoingPaymentAttempts counts pay-step attempts by result
	// (success, retryable, fatal).
	OutgoingPaymentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "outgoing_payment_attempts_total",
		Help:      "Pay-step attempts made by the lifecycle worker.",
	}, []string{"result"})

	// WebhookDeliveryTotal counts webhook dispatch attempts by outcome.
	WebhookDeliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "webhook_delivery_total",
		Help:      "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	// WebhookDeliveryDuration measures webhook endpoint round-trip time.
	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ilpcore",
		Name:      "webhook_delivery_duration_seconds",
		Help:      "Webhook HTTP round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// LedgerTransfersTotal counts ledger adapter operations by kind and
	// outcome (ok, idempotent-replay, error).
	LedgerTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "ledger_transfers_total",
		Help:      "Ledger adapter operations by kind and outcome.",
	}, []string{"kind", "outcome"})

	// RateLimitRejectionsTotal counts packets rejected by the per-peer
	// rate or throughput limiter.
	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilpcore",
		Name:      "rate_limit_rejections_total",
		Help:      "Packets rejected by the per-peer limiter.",
	}, []string{"peer_id", "tier"})
)
