// Package metrics holds the host's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeError          = "error"
	OutcomeTimeout        = "timeout"
	OutcomeExited         = "exited"
	OutcomeAlreadyLoaded  = "already_loaded"
	OutcomeNotLoaded      = "not_loaded"
	OutcomeMethodNotFound = "method_not_found"
)

// Signal labels for PluginSignals.
const (
	SignalInterrupt = "interrupt"
	SignalKill      = "kill"
)

// PluginLoads counts Load attempts by outcome.
var PluginLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_plugin_loads_total",
		Help: "Total number of plugin load attempts",
	},
	[]string{"plugin", "outcome"},
)

// PluginUnloads counts Unload calls by outcome.
var PluginUnloads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_plugin_unloads_total",
		Help: "Total number of plugin unloads",
	},
	[]string{"plugin", "outcome"},
)

// PluginSignals counts signals sent to plugin processes.
var PluginSignals = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_plugin_signals_total",
		Help: "Total number of signals sent to plugin processes",
	},
	[]string{"plugin", "signal"},
)

// PluginCrashes counts plugin processes that exited without being asked to.
var PluginCrashes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_plugin_crashes_total",
		Help: "Total number of unexpected plugin exits",
	},
	[]string{"plugin"},
)

// PluginsLoaded is the number of plugins currently loaded.
var PluginsLoaded = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "brickhost_plugins_loaded",
		Help: "Number of plugins currently loaded",
	},
)

// RPCCalls counts requests the host sent to plugins.
var RPCCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_rpc_calls_total",
		Help: "Total number of requests sent to plugins",
	},
	[]string{"plugin", "method", "outcome"},
)

// RPCDuration is the round-trip time of requests sent to plugins.
var RPCDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "brickhost_rpc_duration_seconds",
		Help:    "Round-trip time of requests sent to plugins",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "method"},
)

// EventsPublished counts host events by type.
var EventsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "brickhost_events_published_total",
		Help: "Total number of host events published",
	},
	[]string{"source", "type"},
)

// RegisterMetrics registers every collector with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		PluginLoads,
		PluginUnloads,
		PluginSignals,
		PluginCrashes,
		PluginsLoaded,
		RPCCalls,
		RPCDuration,
		EventsPublished,
	)
}

func RecordLoad(plugin, outcome string) {
	PluginLoads.WithLabelValues(plugin, outcome).Inc()
}

func RecordUnload(plugin, outcome string) {
	PluginUnloads.WithLabelValues(plugin, outcome).Inc()
}

func RecordSignal(plugin, signal string) {
	PluginSignals.WithLabelValues(plugin, signal).Inc()
}

func RecordCrash(plugin string) {
	PluginCrashes.WithLabelValues(plugin).Inc()
}

// RecordRPC records one request to a plugin.
func RecordRPC(plugin, method, outcome string, d time.Duration) {
	RPCCalls.WithLabelValues(plugin, method, outcome).Inc()
	RPCDuration.WithLabelValues(plugin, method).Observe(d.Seconds())
}

func RecordEvent(source, eventType string) {
	EventsPublished.WithLabelValues(source, eventType).Inc()
}
