package config

import "time"

// Config represents the complete brickhost configuration.
type Config struct {
	Include    []string              `yaml:"include,omitempty"`
	Service    ServiceConfig         `yaml:"service"`
	State      StateConfig           `yaml:"state"`
	API        APIConfig             `yaml:"api,omitempty"`
	Webhooks   *WebhooksConfig       `yaml:"webhooks,omitempty"`
	Server     ServerConfig          `yaml:"server"`
	PluginsDir string                `yaml:"plugins_dir"`
	Plugins    map[string]PluginConf `yaml:"plugins"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
}

// State backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// StateConfig selects and configures the plugin store backend.
type StateConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	KeyPrefix     string `yaml:"key_prefix,omitempty"`
	MaxValueBytes int    `yaml:"max_value_bytes,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint defines a single event ingress endpoint.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	// EventPrefix is prepended to the type of every event published from
	// this endpoint, e.g. "discord." turns "message" into "discord.message".
	EventPrefix string `yaml:"event_prefix,omitempty"`
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// ServerConfig points at the controlled game server.
type ServerConfig struct {
	// Console is the file or FIFO the game server reads commands from.
	Console          string        `yaml:"console"`
	DataDir          string        `yaml:"data_dir"`
	MapChangeTimeout time.Duration `yaml:"map_change_timeout,omitempty"`
}

// PluginConf holds host-side settings for one plugin.
type PluginConf struct {
	Enabled   *bool          `yaml:"enabled,omitempty"`
	Autoload  *bool          `yaml:"autoload,omitempty"`
	Config    map[string]any `yaml:"config,omitempty"`
	Timeout   time.Duration  `yaml:"timeout,omitempty"`
	KillGrace time.Duration  `yaml:"kill_grace,omitempty"`
}

// IsEnabled reports whether the plugin may be loaded. Default true.
func (p PluginConf) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ShouldAutoload reports whether the plugin is loaded at startup. Default true.
func (p PluginConf) ShouldAutoload() bool {
	return p.IsEnabled() && (p.Autoload == nil || *p.Autoload)
}

// Defaults returns a Config with the host defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "brickhost",
			LogLevel:  "info",
			LogFormat: "json",
			PIDFile:   "./data/brickhost.pid",
		},
		State: StateConfig{
			Backend:   BackendSQLite,
			Path:      "./data/state.db",
			KeyPrefix: "brickhost:",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Server: ServerConfig{
			MapChangeTimeout: 10 * time.Second,
		},
		PluginsDir: "./plugins",
		Plugins:    make(map[string]PluginConf),
	}
}

// DefaultPluginConf returns default plugin configuration.
func DefaultPluginConf() PluginConf {
	return PluginConf{
		Timeout:   5 * time.Second,
		KillGrace: time.Second,
	}
}

// Plugin returns the settings for name with defaults filled in. Plugins
// absent from the config get the defaults.
func (c *Config) Plugin(name string) PluginConf {
	return mergePluginDefaults(c.Plugins[name])
}
