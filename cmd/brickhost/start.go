package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mattjoyce/brickhost/internal/api"
	"github.com/mattjoyce/brickhost/internal/config"
	"github.com/mattjoyce/brickhost/internal/console"
	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/lock"
	"github.com/mattjoyce/brickhost/internal/log"
	"github.com/mattjoyce/brickhost/internal/metrics"
	"github.com/mattjoyce/brickhost/internal/plugin"
	"github.com/mattjoyce/brickhost/internal/state"
	"github.com/mattjoyce/brickhost/internal/storage"
	"github.com/mattjoyce/brickhost/internal/webhook"
)

// shutdownTimeout bounds UnloadAll once a signal arrives.
const shutdownTimeout = 30 * time.Second

// eventHistory is how many events the hub keeps for SSE replay.
const eventHistory = 256

// stateBackend is a state.Backend whose value size limit is configurable.
type stateBackend interface {
	state.Backend
	SetMaxValueBytes(n int)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigFlag(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("brickhost starting", "version", version, "config", path)

	pidLock, err := lock.Acquire(cfg.Service.PIDFile)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg.State)
	if err != nil {
		logger.Error("failed to open state backend", "backend", cfg.State.Backend, "error", err)
		return 1
	}
	defer closeBackend()
	logger.Info("state backend opened", "backend", cfg.State.Backend)

	hub := events.NewHub(eventHistory)
	roster := console.NewRoster()
	stopRoster := roster.Follow(hub)
	defer stopRoster()

	gameConsole := console.NewServer(console.Options{
		InputPath:        cfg.Server.Console,
		DataDir:          cfg.Server.DataDir,
		MapChangeTimeout: cfg.Server.MapChangeTimeout,
		Logger:           log.WithComponent("console"),
	}, hub, roster)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterMetrics(promRegistry)

	defs, err := plugin.Discover([]string{cfg.PluginsDir}, discoveryLogger(logger))
	if err != nil {
		logger.Error("plugin discovery failed", "plugins_dir", cfg.PluginsDir, "error", err)
		return 1
	}

	registry := plugin.NewRegistry()
	scopes := make(map[string]api.PluginConfig, len(defs))
	for _, def := range defs {
		pc := cfg.Plugin(def.Name)
		if !pc.IsEnabled() {
			logger.Info("plugin disabled by config", "plugin", def.Name)
			continue
		}
		scope := state.NewScope(backend, def.Name, pluginDefaults(def, pc))
		inst := plugin.NewInstance(def, scope, hub, gameConsole, plugin.Options{
			Timeout:      pc.Timeout,
			KillGrace:    pc.KillGrace,
			OnStatus:     publishStatus(hub),
			InitialState: roster.InitialState,
			Logger:       log.WithPlugin(def.Name),
		})
		if err := registry.Add(inst); err != nil {
			logger.Error("failed to register plugin", "plugin", def.Name, "error", err)
			return 1
		}
		scopes[def.Name] = scope
	}
	logger.Info("plugin discovery complete", "discovered", len(defs), "registered", len(scopes))

	errCh := make(chan error, 2)

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, registry, scopes, hub, promRegistry, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhooks)
		if err != nil {
			logger.Error("failed to configure webhooks", "error", err)
			return 1
		}
		webhookServer := webhook.New(webhookConfig, hub, log.WithComponent("webhook"))
		go func() {
			if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("webhook: %w", err)
			}
		}()
		logger.Info("webhook server enabled", "listen", webhookConfig.Listen, "endpoints", len(webhookConfig.Endpoints))
	}

	results := registry.LoadAll(ctx, func(inst *plugin.Instance) bool {
		return cfg.Plugin(inst.Name()).ShouldAutoload()
	})
	for name, ok := range results {
		if !ok {
			logger.Warn("plugin failed to load at startup", "plugin", name)
		}
	}
	logger.Info("brickhost running (press Ctrl+C to stop)", "loaded", registry.Loaded())

	exit := 0
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		exit = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	registry.UnloadAll(shutdownCtx)

	logger.Info("brickhost stopped")
	return exit
}

// openBackend opens the configured plugin store. The returned func closes it.
func openBackend(ctx context.Context, sc config.StateConfig) (state.Backend, func(), error) {
	var (
		backend stateBackend
		closer  func()
	)
	switch sc.Backend {
	case config.BackendRedis:
		rs, err := state.NewRedisStore(ctx, state.RedisConfig{
			Address:  sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			Prefix:   sc.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		backend, closer = rs, func() { _ = rs.Close() }
	default:
		db, err := storage.OpenSQLite(ctx, sc.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.BootstrapSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		backend, closer = state.NewStore(db), func() { _ = db.Close() }
	}
	backend.SetMaxValueBytes(sc.MaxValueBytes)
	return backend, closer, nil
}

// pluginDefaults layers the config file's overrides on the manifest defaults.
// Values persisted through the API take precedence over both.
func pluginDefaults(def *plugin.Definition, pc config.PluginConf) map[string]any {
	out := def.Manifest.Defaults()
	maps.Copy(out, pc.Config)
	return out
}

func publishStatus(hub *events.Hub) func(plugin.Status) {
	return func(st plugin.Status) {
		hub.Publish(plugin.StatusEvent, st)
		metrics.RecordEvent("host", plugin.StatusEvent)
	}
}

func discoveryLogger(logger *slog.Logger) func(level, msg string, args ...any) {
	return func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "info":
			logger.Info(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		}
	}
}

func resolveConfigFlag(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	discovered, err := config.DiscoverConfigPath()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}
