package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricOpenConnections tracks currently admitted websocket connections.
	metricOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "todosync_ws_open_connections",
		Help: "Number of currently admitted websocket connections",
	})

	// metricRooms tracks live (non-empty) rooms.
	metricRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "todosync_ws_rooms",
		Help: "Number of live rooms (owners with at least one open connection)",
	})

	// metricCommands counts dispatched commands by type and outcome.
	// Outcomes: "ok", "validation_error", "not_found", "store_failure".
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "todosync_ws_commands_total",
		Help: "Total commands dispatched, by command type and outcome",
	}, []string{"command", "outcome"})

	// metricBroadcastDeliveries counts per-member broadcast deliveries.
	metricBroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "todosync_ws_broadcast_deliveries_total",
		Help: "Total room broadcast deliveries, by event type",
	}, []string{"event"})

	// metricHandshakeRejects counts refused connection attempts.
	// Reasons: "origin", "unauthenticated", "subprotocol".
	metricHandshakeRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "todosync_ws_handshake_rejects_total",
		Help: "Total websocket handshakes refused, by reason",
	}, []string{"reason"})
)

const (
	outcomeOK              = "ok"
	outcomeValidationError = "validation_error"
	outcomeNotFound        = "not_found"
	outcomeStoreFailure    = "store_failure"
)
