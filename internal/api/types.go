package api

import (
	"time"

	"github.com/mattjoyce/brickhost/internal/plugin"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is the plugin's JSON-RPC error code, when the plugin answered.
	Code int `json:"code,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Plugins       int    `json:"plugins"`
	PluginsLoaded int    `json:"plugins_loaded"`
}

// PluginSummary is one entry of GET /plugins.
type PluginSummary struct {
	Name        string       `json:"name"`
	Version     string       `json:"version,omitempty"`
	Description string       `json:"description,omitempty"`
	State       plugin.State `json:"state"`
	Loaded      bool         `json:"loaded"`
	Commands    []string     `json:"commands"`
}

// PluginListResponse is returned by GET /plugins.
type PluginListResponse struct {
	Plugins []PluginSummary `json:"plugins"`
}

// PluginDetailResponse is returned by GET /plugins/{name}.
type PluginDetailResponse struct {
	Name        string           `json:"name"`
	Dir         string           `json:"dir"`
	Fingerprint string           `json:"fingerprint"`
	Manifest    *plugin.Manifest `json:"manifest"`
	Status      plugin.Status    `json:"status"`
	Config      map[string]any   `json:"config,omitempty"`
}

// ConfigResponse is returned by PUT /plugins/{name}/config.
type ConfigResponse struct {
	Config map[string]any `json:"config"`
	// Reload is true when the plugin is running with the previous config.
	Reload bool `json:"reload"`
}

// sseEvent is the data payload of one SSE frame.
type sseEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Args []any     `json:"args"`
}
