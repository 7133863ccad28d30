package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exercisegrade_ws_connections",
			Help: "Open WebSocket sessions",
		},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercisegrade_ws_messages_total",
			Help: "Inbound WebSocket messages by type",
		},
		[]string{"type"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exercisegrade_ws_rate_limited_total",
			Help: "Run messages rejected by the per-session rate limit",
		},
	)

	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercisegrade_verdicts_total",
			Help: "Verdicts sent by reason code",
		},
		[]string{"reason"},
	)
)
