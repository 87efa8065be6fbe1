package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Relay
	// ============================================
	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "innerledger_relay_requests_total",
			Help: "Relay requests by outcome (submitted, replayed, not_configured, invalid, forbidden, rate_limited, gas_exceeded, unauthenticated, chain_error)",
		},
		[]string{"outcome"},
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "innerledger_relay_duration_seconds",
			Help:    "Time spent handling a relay request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	RateLimitTrackedSenders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_ratelimit_tracked_senders",
		Help: "Sender windows held by the in-memory rate limiter",
	})

	IPRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "innerledger_ip_rate_limited_total",
		Help: "Requests rejected by the per-IP guard",
	})

	// ============================================
	// Relayer account
	// ============================================
	RelayerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_relayer_balance_wei",
		Help: "Native balance of the relayer account in wei",
	})

	RelayerBalanceLow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_relayer_balance_low",
		Help: "1 when the relayer balance is under the configured minimum",
	})

	// ============================================
	// Transaction tracking
	// ============================================
	TxConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "innerledger_tx_confirmations_total",
			Help: "Relayed transactions by final status (confirmed, reverted, unknown)",
		},
		[]string{"status"},
	)

	TxConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "innerledger_tx_confirmation_seconds",
		Help:    "Time from submission to receipt",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	ActiveWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_tx_watchers_active",
		Help: "Transactions currently awaiting a receipt",
	})

	// ============================================
	// Infrastructure
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "innerledger_nats_messages_published_total",
			Help: "Events published to NATS",
		},
		[]string{"subject"},
	)

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_websocket_connections",
		Help: "Open websocket connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "innerledger_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "innerledger_ai_requests_total",
			Help: "Reflection requests by outcome",
		},
		[]string{"outcome"},
	)
)
