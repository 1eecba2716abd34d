package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters consumed by the monitoring dashboard. Registered on the default
// registry and served by promhttp on /metrics.
var (
	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessstake_webhooks_processed_total",
		Help: "Payment webhooks by reconciliation outcome.",
	}, []string{"outcome"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessstake_settlements_total",
		Help: "Match settlements by outcome.",
	}, []string{"outcome"})

	RateLimitTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessstake_chess_api_rate_limit_trips_total",
		Help: "Times the chess API returned 410/429 and a cooldown started.",
	})

	ChessAPICacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessstake_chess_api_cache_total",
		Help: "Chess API cache lookups by result.",
	}, []string{"result"})

	UnknownResultReasons = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chessstake_unknown_result_reasons_total",
		Help: "Game-end reasons outside the known vocabulary (settled as draw).",
	})

	SweeperActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessstake_sweeper_actions_total",
		Help: "Timeout sweeper actions by kind.",
	}, []string{"action"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessstake_provider_calls_total",
		Help: "Mobile money provider calls by kind and result.",
	}, []string{"kind", "result"})
)
