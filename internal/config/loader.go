package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultMaxBodySize applies to webhook endpoints without max_body_size.
const DefaultMaxBodySize = 1048576

// Load reads and parses configuration from a file. A directory is accepted
// when it contains config.yaml. Files listed under include are merged in
// order, later files winning.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	cfg = applyConfigDefaults(cfg)

	allPaths := make([]string, 0, len(visited))
	for path := range visited {
		allPaths = append(allPaths, path)
	}
	sort.Strings(allPaths)
	if err := verifyAllConfigHashes(allPaths); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	for name, pluginConf := range cfg.Plugins {
		cfg.Plugins[name] = mergePluginDefaults(pluginConf)
	}

	return cfg, nil
}

// DiscoverConfigPath finds the config file when none is given.
// Priority order: $BRICKHOST_CONFIG, ~/.config/brickhost/config.yaml,
// /etc/brickhost/config.yaml, ./config.yaml.
func DiscoverConfigPath() (string, error) {
	if path := os.Getenv("BRICKHOST_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	candidates := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "brickhost", "config.yaml"))
	}
	candidates = append(candidates, "/etc/brickhost/config.yaml", "./config.yaml")
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config found (checked: $BRICKHOST_CONFIG, ~/.config/brickhost, /etc/brickhost, ./config.yaml)")
}

// DiscoverAllConfigFiles returns absolute paths to all configuration files in the include tree.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(&Config{}, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// loadIncludes recursively loads and merges files from the include array.
// visited tracks loaded files to prevent cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)

		resolvedPath := includePath
		if !filepath.IsAbs(includePath) {
			resolvedPath = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(resolvedPath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}

		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("include[%d]: file not found: %s\n"+
					"Referenced from: %s\n"+
					"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
			}
			return fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
		}
		visited[absPath] = true

		includedCfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		deepMergeConfig(cfg, includedCfg)

		if len(includedCfg.Include) > 0 {
			if err := loadIncludes(cfg, includedCfg.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// deepMergeConfig merges src into dst, with src taking precedence for non-zero values.
func deepMergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.LogFormat != "" {
		dst.Service.LogFormat = src.Service.LogFormat
	}
	if src.Service.PIDFile != "" {
		dst.Service.PIDFile = src.Service.PIDFile
	}

	if src.State.Backend != "" {
		dst.State.Backend = src.State.Backend
	}
	if src.State.Path != "" {
		dst.State.Path = src.State.Path
	}
	if src.State.RedisAddr != "" {
		dst.State.RedisAddr = src.State.RedisAddr
	}
	if src.State.RedisPassword != "" {
		dst.State.RedisPassword = src.State.RedisPassword
	}
	if src.State.RedisDB != 0 {
		dst.State.RedisDB = src.State.RedisDB
	}
	if src.State.KeyPrefix != "" {
		dst.State.KeyPrefix = src.State.KeyPrefix
	}
	if src.State.MaxValueBytes != 0 {
		dst.State.MaxValueBytes = src.State.MaxValueBytes
	}

	if src.API.Enabled {
		dst.API.Enabled = src.API.Enabled
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if src.API.APIKey != "" {
		dst.API.APIKey = src.API.APIKey
	}

	if src.Server.Console != "" {
		dst.Server.Console = src.Server.Console
	}
	if src.Server.DataDir != "" {
		dst.Server.DataDir = src.Server.DataDir
	}
	if src.Server.MapChangeTimeout != 0 {
		dst.Server.MapChangeTimeout = src.Server.MapChangeTimeout
	}

	if src.PluginsDir != "" {
		dst.PluginsDir = src.PluginsDir
	}

	// Plugins are additive; a later file replaces a plugin's whole entry.
	if src.Plugins != nil {
		if dst.Plugins == nil {
			dst.Plugins = make(map[string]PluginConf)
		}
		for name, plugin := range src.Plugins {
			dst.Plugins[name] = plugin
		}
	}

	if src.Webhooks != nil {
		if dst.Webhooks == nil {
			dst.Webhooks = &WebhooksConfig{}
		}
		if src.Webhooks.Listen != "" {
			dst.Webhooks.Listen = src.Webhooks.Listen
		}
		dst.Webhooks.Endpoints = append(dst.Webhooks.Endpoints, src.Webhooks.Endpoints...)
	}
}

func verifyAllConfigHashes(paths []string) error {
	byDir := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
	}

	for dir, files := range byDir {
		sums, err := ReadChecksums(dir)
		if errors.Is(err, ErrNoChecksums) {
			// Verification is opt-in per directory.
			continue
		}
		if err != nil {
			return err
		}
		for _, path := range files {
			if err := sums.Verify(path); err != nil {
				return fmt.Errorf("config verification failed: %w\n"+
					"If you edited this file intentionally, run: brickhost config lock --config %s", err, dir)
			}
		}
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.PIDFile == "" {
		cfg.Service.PIDFile = defaults.Service.PIDFile
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = defaults.State.Backend
	}
	if cfg.State.Backend == BackendSQLite && cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.State.KeyPrefix == "" {
		cfg.State.KeyPrefix = defaults.State.KeyPrefix
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Server.MapChangeTimeout == 0 {
		cfg.Server.MapChangeTimeout = defaults.Server.MapChangeTimeout
	}

	if cfg.Webhooks != nil {
		for i := range cfg.Webhooks.Endpoints {
			if cfg.Webhooks.Endpoints[i].SignatureHeader == "" {
				cfg.Webhooks.Endpoints[i].SignatureHeader = "X-Brickhost-Signature"
			}
		}
	}

	if cfg.PluginsDir == "" {
		cfg.PluginsDir = defaults.PluginsDir
	}
	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]PluginConf)
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate reports it where it matters.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	switch cfg.State.Backend {
	case BackendSQLite:
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required for the sqlite backend")
		}
	case BackendRedis:
		if cfg.State.RedisAddr == "" {
			return fmt.Errorf("state.redis_addr is required for the redis backend")
		}
		if err := checkUnresolved("state.redis_password", cfg.State.RedisPassword); err != nil {
			return err
		}
	default:
		return fmt.Errorf("state.backend must be sqlite or redis (got %q)", cfg.State.Backend)
	}
	if cfg.State.MaxValueBytes < 0 {
		return fmt.Errorf("state.max_value_bytes must not be negative")
	}

	if cfg.PluginsDir == "" {
		return fmt.Errorf("plugins_dir is required")
	}

	if cfg.API.Enabled {
		if cfg.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when the API is enabled")
		}
		if err := checkUnresolved("api.api_key", cfg.API.APIKey); err != nil {
			return err
		}
	}

	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		if cfg.Webhooks.Listen == "" {
			return fmt.Errorf("webhooks.listen is required when endpoints are configured")
		}
		seen := make(map[string]bool)
		for i, ep := range cfg.Webhooks.Endpoints {
			if !strings.HasPrefix(ep.Path, "/") {
				return fmt.Errorf("webhooks.endpoints[%d]: path must start with / (got %q)", i, ep.Path)
			}
			if seen[ep.Path] {
				return fmt.Errorf("webhooks.endpoints[%d]: duplicate path %q", i, ep.Path)
			}
			seen[ep.Path] = true
			if ep.Secret == "" {
				return fmt.Errorf("webhooks.endpoints[%d] (%s): secret is required", i, ep.Path)
			}
			if err := checkUnresolved(fmt.Sprintf("webhooks.endpoints[%d].secret", i), ep.Secret); err != nil {
				return err
			}
			if _, err := ParseSize(ep.MaxBodySize); err != nil {
				return fmt.Errorf("webhooks.endpoints[%d] (%s): invalid max_body_size %q: %w", i, ep.Path, ep.MaxBodySize, err)
			}
		}
	}

	for name, plugin := range cfg.Plugins {
		if plugin.Timeout < 0 {
			return fmt.Errorf("plugin %q: timeout must not be negative", name)
		}
		if plugin.KillGrace < 0 {
			return fmt.Errorf("plugin %q: kill_grace must not be negative", name)
		}
		if !plugin.IsEnabled() {
			continue
		}
		if plugin.Config != nil {
			if err := checkUnresolvedEnvVars(plugin.Config, name); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// checkUnresolvedEnvVars recursively checks for ${VAR} placeholders in config values.
func checkUnresolvedEnvVars(data map[string]any, pluginName string) error {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if matches := envVarPattern.FindStringSubmatch(v); len(matches) > 1 {
				return fmt.Errorf("plugin %q: environment variable ${%s} is not set (config.%s)", pluginName, matches[1], key)
			}
		case map[string]any:
			if err := checkUnresolvedEnvVars(v, pluginName); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergePluginDefaults applies default values to plugin config where not specified.
func mergePluginDefaults(plugin PluginConf) PluginConf {
	defaults := DefaultPluginConf()

	if plugin.Timeout == 0 {
		plugin.Timeout = defaults.Timeout
	}
	if plugin.KillGrace == 0 {
		plugin.KillGrace = defaults.KillGrace
	}

	return plugin
}

// ParseSize parses size strings like "1MB", "64KB" or "2048" to bytes.
// Empty means DefaultMaxBodySize.
func ParseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
