// Command echo is a minimal brickhost plugin. It registers one chat command
// and repeats whatever follows it back to the server, counting uses per
// player in the plugin store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/brickhost/internal/log"
	"github.com/mattjoyce/brickhost/internal/rpc"
	"github.com/mattjoyce/brickhost/internal/transport"
)

// hostCallTimeout bounds each request the plugin makes to the host.
const hostCallTimeout = 5 * time.Second

type echoConfig struct {
	Command string `json:"command"`
	Prefix  string `json:"prefix"`
	Whisper bool   `json:"whisper"`
}

func (c echoConfig) withDefaults() echoConfig {
	if c.Command == "" {
		c.Command = "echo"
	}
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	return c
}

type initResult struct {
	RegisteredCommands []string `json:"registeredCommands"`
}

type echoPlugin struct {
	bridge *rpc.Bridge
	logger *slog.Logger

	mu      sync.Mutex
	cfg     echoConfig
	players map[string]bool

	// wg tracks host calls started from notification handlers.
	wg sync.WaitGroup
}

func main() {
	logger := log.New(os.Stderr, "info", "text")
	if err := run(os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("echo plugin stopped", "error", err)
		os.Exit(1)
	}
}

// run serves the control stream on in/out until in reaches EOF.
func run(in io.Reader, out io.Writer, logger *slog.Logger) error {
	bridge := rpc.NewBridge(out, logger)
	p := &echoPlugin{
		bridge:  bridge,
		logger:  logger,
		cfg:     echoConfig{}.withDefaults(),
		players: make(map[string]bool),
	}
	p.register()

	lines := transport.NewLines("stdin", logger)
	lines.On(bridge.Dispatch)
	err := lines.Run(in)

	// Nothing can answer once stdin is gone.
	bridge.Close(nil)
	p.wg.Wait()
	return err
}

func (p *echoPlugin) register() {
	p.bridge.Handle("init", rpc.Typed(p.init))
	p.bridge.Handle("stop", func(context.Context, json.RawMessage) (any, error) {
		p.wg.Wait()
		return nil, nil
	})
	p.bridge.Handle("ping", func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	})
	p.bridge.Handle("join", p.onPresence(true))
	p.bridge.Handle("leave", p.onPresence(false))
	p.bridge.Handle("chat", p.onChat)
}

func (p *echoPlugin) init(_ context.Context, cfg echoConfig) (initResult, error) {
	cfg = cfg.withDefaults()
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.bridge.Notify("info", fmt.Sprintf("echo ready on %s%s", cfg.Prefix, cfg.Command))
	return initResult{RegisteredCommands: []string{cfg.Command}}, nil
}

func (p *echoPlugin) onPresence(joined bool) rpc.Handler {
	return func(_ context.Context, params json.RawMessage) (any, error) {
		args, err := decodeArgs(params)
		if err != nil || len(args) == 0 {
			return nil, err
		}
		name := playerName(args[0])
		if name == "" {
			return nil, nil
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if joined {
			p.players[name] = true
		} else {
			delete(p.players, name)
		}
		return nil, nil
	}
}

// onChat handles a chat event with args [player, message]. Notification
// handlers run on the read loop, so host calls happen on their own goroutine.
func (p *echoPlugin) onChat(_ context.Context, params json.RawMessage) (any, error) {
	args, err := decodeArgs(params)
	if err != nil || len(args) < 2 {
		return nil, err
	}
	name := playerName(args[0])
	var message string
	if err := json.Unmarshal(args[1], &message); err != nil {
		return nil, nil
	}

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	text, ok := parseCommand(message, cfg)
	if !ok {
		return nil, nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.echo(name, text, cfg); err != nil {
			p.logger.Warn("echo failed", "player", name, "error", err)
		}
	}()
	return nil, nil
}

func (p *echoPlugin) echo(player, text string, cfg echoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
	defer cancel()

	uses, err := p.bumpUses(ctx, player)
	if err != nil {
		return err
	}

	if cfg.Whisper && player != "" {
		_, err = p.bridge.Emit(ctx, "whisper", map[string]string{"target": player, "message": text})
		return err
	}
	line := text
	if player != "" {
		line = fmt.Sprintf("%s (%d): %s", player, uses, text)
	}
	_, err = p.bridge.Emit(ctx, "broadcast", line)
	return err
}

// bumpUses increments the player's use counter in the plugin store.
func (p *echoPlugin) bumpUses(ctx context.Context, player string) (int, error) {
	key := "uses:" + player
	raw, err := p.bridge.Emit(ctx, "get", key)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	var uses int
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &uses); err != nil {
			return 0, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	uses++
	if _, err := p.bridge.Emit(ctx, "set", map[string]any{"key": key, "value": uses}); err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	return uses, nil
}

// parseCommand returns the text after "<prefix><command> ".
func parseCommand(message string, cfg echoConfig) (string, bool) {
	head := cfg.Prefix + cfg.Command
	message = strings.TrimSpace(message)
	if message == head {
		return "", false
	}
	rest, ok := strings.CutPrefix(message, head+" ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func decodeArgs(params json.RawMessage) ([]json.RawMessage, error) {
	if len(params) == 0 || string(params) == "null" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("event args must be an array: %w", err)
	}
	return args, nil
}

// playerName accepts a bare name or a player object.
func playerName(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}
