// Package telemetry centralizes Prometheus metric registration for the bus
// server, the gateway transport, the operation dispatcher, and the
// subscription bridge, per spec §4.13. It registers with the global
// prometheus.DefaultRegisterer, exposed by cmd/ipcgatewayd's optional
// /metrics HTTP listener.
//
// Adapted from the teacher's internal/metrics/prom.go: same
// once.Do-guarded MustRegister shape, generalized from flamegraph-specific
// gauges/counters to bus/gateway/dispatcher/bridge instrumentation.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// BusRequestsTotal counts core-bus requests handled by any interface
	// server, labeled by interface, method, and outcome ("ok" or "error").
	BusRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ipcbus",
		Subsystem: "bus",
		Name:      "requests_total",
		Help:      "Total core-bus requests handled, by interface, method, and outcome.",
	}, []string{"interface", "method", "outcome"})

	// GatewayConnections tracks the number of currently connected IPC
	// gateway clients.
	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ipcbus",
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Current number of connected IPC gateway clients.",
	})

	// GatewayStreams tracks the number of open gateway streams across all
	// connections.
	GatewayStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ipcbus",
		Subsystem: "gateway",
		Name:      "streams",
		Help:      "Current number of open IPC gateway streams.",
	})

	// DispatchOperationDuration observes how long a dispatcher operation
	// handler takes to run, labeled by modeled operation name.
	DispatchOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ipcbus",
		Subsystem: "dispatch",
		Name:      "operation_duration_seconds",
		Help:      "Dispatcher operation handler latency, by operation name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// BridgeSessions tracks the number of active subscription-bridge
	// sessions (gateway streams bound to a core-bus subscription).
	BridgeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ipcbus",
		Subsystem: "bridge",
		Name:      "sessions",
		Help:      "Current number of active subscription-bridge sessions.",
	})
)

// Register exports all metrics; safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			BusRequestsTotal,
			GatewayConnections,
			GatewayStreams,
			DispatchOperationDuration,
			BridgeSessions,
		)
	})
}
