package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket connection metrics
	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_active_connections",
		Help: "Number of active WebSocket connections",
	})

	metricTotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_total_connections",
		Help: "Total number of WebSocket connections established",
	})

	metricMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_received_total",
		Help: "Total number of WebSocket messages received by type",
	}, []string{"type"})

	// Session metrics
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_active_sessions",
		Help: "Number of active game sessions",
	})

	metricTotalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_total_sessions",
		Help: "Total number of game sessions created",
	})
)
