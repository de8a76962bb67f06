// Package hostfunc is the table of methods a plugin may call on the host.
//
// The table is registered on every fresh rpc.Bridge. Each method decodes its
// params, fills documented defaults and delegates to a collaborator; there is
// no other logic here.
package hostfunc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/brickhost/internal/protocol"
	"github.com/mattjoyce/brickhost/internal/rpc"
)

//go:generate mockgen -destination=mocks/mock_hostfunc.go -package=mocks github.com/mattjoyce/brickhost/internal/hostfunc Store,Console

// Store is the plugin-scoped key-value store.
type Store interface {
	// Get returns nil when the key does not exist.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
	Wipe(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
}

// Player is one connected player as reported by the console.
type Player struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	Controller string `json:"controller,omitempty"`
	State      string `json:"state,omitempty"`
}

// Offset shifts a loaded save in world units.
type Offset struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Console is the host's game-server control surface.
type Console interface {
	Writeln(ctx context.Context, line string) error
	Broadcast(ctx context.Context, lines ...string) error
	Whisper(ctx context.Context, target, message string) error
	Players(ctx context.Context) ([]Player, error)
	RoleSetup(ctx context.Context) (json.RawMessage, error)
	BanList(ctx context.Context) (json.RawMessage, error)
	Saves(ctx context.Context) ([]string, error)
	SavePath(ctx context.Context, name string) (string, error)
	ClearBricks(ctx context.Context, target string, quiet bool) error
	ClearAllBricks(ctx context.Context, quiet bool) error
	SaveBricks(ctx context.Context, name string) error
	LoadBricks(ctx context.Context, name string, offset Offset, quiet bool) error
	ChangeMap(ctx context.Context, name string) (bool, error)
}

// Glyph and level for each logging method.
var logMethods = map[string]struct {
	glyph string
	level slog.Level
}{
	"log":   {">>", slog.LevelInfo},
	"error": {"!>", slog.LevelError},
	"info":  {"#>", slog.LevelInfo},
	"warn":  {":>", slog.LevelWarn},
	"trace": {"T>", slog.LevelDebug},
}

// Methods lists every method Register installs.
var Methods = []string{
	"log", "error", "info", "warn", "trace",
	"get", "set", "delete", "wipe", "count", "keys",
	"exec", "writeln", "broadcast", "whisper",
	"getPlayers", "getRoleSetup", "getBanList", "getSaves", "getSavePath",
	"clearBricks", "clearAllBricks", "saveBricks", "loadBricks", "changeMap",
}

// Registrar is the part of rpc.Bridge the table needs.
type Registrar interface {
	Handle(method string, h rpc.Handler)
}

type setParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type whisperParams struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

type clearParams struct {
	Target string `json:"target"`
	Quiet  bool   `json:"quiet"`
}

type clearAllParams struct {
	Quiet bool `json:"quiet"`
}

type loadParams struct {
	Name  string `json:"name"`
	OffX  int    `json:"offX"`
	OffY  int    `json:"offY"`
	OffZ  int    `json:"offZ"`
	Quiet bool   `json:"quiet"`
}

// Register installs the host method table on r.
func Register(r Registrar, logger *slog.Logger, store Store, console Console) {
	for method, lm := range logMethods {
		glyph, level := lm.glyph, lm.level
		r.Handle(method, func(ctx context.Context, params json.RawMessage) (any, error) {
			logger.Log(ctx, level, glyph+" "+text(params))
			return nil, nil
		})
	}

	registerStorage(r, store)
	registerConsole(r, console)
}

func registerStorage(r Registrar, store Store) {
	r.Handle("get", rpc.Typed(func(ctx context.Context, key string) (json.RawMessage, error) {
		return store.Get(ctx, key)
	}))
	r.Handle("set", rpc.Typed(func(ctx context.Context, p setParams) (any, error) {
		value := p.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		return nil, store.Set(ctx, p.Key, value)
	}))
	r.Handle("delete", rpc.Typed(func(ctx context.Context, key string) (any, error) {
		return nil, store.Delete(ctx, key)
	}))
	r.Handle("wipe", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, store.Wipe(ctx)
	})
	r.Handle("count", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return store.Count(ctx)
	})
	r.Handle("keys", func(ctx context.Context, _ json.RawMessage) (any, error) {
		keys, err := store.Keys(ctx)
		if keys == nil {
			keys = []string{}
		}
		return keys, err
	})
}

func registerConsole(r Registrar, console Console) {
	writeln := rpc.Typed(func(ctx context.Context, line string) (any, error) {
		return nil, console.Writeln(ctx, line)
	})
	r.Handle("exec", writeln)
	r.Handle("writeln", writeln)

	r.Handle("broadcast", func(ctx context.Context, params json.RawMessage) (any, error) {
		lines, err := stringOrList(params)
		if err != nil {
			return nil, err
		}
		return nil, console.Broadcast(ctx, lines...)
	})
	r.Handle("whisper", rpc.Typed(func(ctx context.Context, p whisperParams) (any, error) {
		return nil, console.Whisper(ctx, p.Target, p.Message)
	}))

	r.Handle("getPlayers", func(ctx context.Context, _ json.RawMessage) (any, error) {
		players, err := console.Players(ctx)
		if players == nil {
			players = []Player{}
		}
		return players, err
	})
	r.Handle("getRoleSetup", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return console.RoleSetup(ctx)
	})
	r.Handle("getBanList", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return console.BanList(ctx)
	})
	r.Handle("getSaves", func(ctx context.Context, _ json.RawMessage) (any, error) {
		saves, err := console.Saves(ctx)
		if saves == nil {
			saves = []string{}
		}
		return saves, err
	})
	r.Handle("getSavePath", rpc.Typed(func(ctx context.Context, name string) (string, error) {
		return console.SavePath(ctx, name)
	}))

	r.Handle("clearBricks", rpc.Typed(func(ctx context.Context, p clearParams) (any, error) {
		return nil, console.ClearBricks(ctx, p.Target, p.Quiet)
	}))
	r.Handle("clearAllBricks", rpc.Typed(func(ctx context.Context, p clearAllParams) (any, error) {
		return nil, console.ClearAllBricks(ctx, p.Quiet)
	}))
	r.Handle("saveBricks", rpc.Typed(func(ctx context.Context, name string) (any, error) {
		return nil, console.SaveBricks(ctx, name)
	}))
	r.Handle("loadBricks", rpc.Typed(func(ctx context.Context, p loadParams) (any, error) {
		return nil, console.LoadBricks(ctx, p.Name, Offset{X: p.OffX, Y: p.OffY, Z: p.OffZ}, p.Quiet)
	}))
	r.Handle("changeMap", rpc.Typed(func(ctx context.Context, name string) (bool, error) {
		return console.ChangeMap(ctx, name)
	}))
}

// text renders a logging param. Strings are logged bare, anything else as JSON.
func text(params json.RawMessage) string {
	var s string
	if err := json.Unmarshal(params, &s); err == nil {
		return s
	}
	return string(params)
}

func stringOrList(params json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(params, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(params, &many); err != nil {
		return nil, protocol.InvalidParams(fmt.Errorf("broadcast expects a string or a list of strings: %w", err))
	}
	return many, nil
}
