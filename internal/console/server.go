// Package console drives the game server through its console input and
// answers queries from the files the server keeps in its data dir.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/brickhost/internal/hostfunc"
)

const (
	RoleSetupFile = "RoleSetup.json"
	BanListFile   = "BanList.json"
	SavesDir      = "Saves"
	SaveExt       = ".brs"

	DefaultMapChangeTimeout = 10 * time.Second
)

var (
	// ErrNoInput is returned by writes when no console input is configured.
	ErrNoInput = errors.New("console input not configured")
	// ErrInvalidName rejects save and map names that are empty or contain a path.
	ErrInvalidName = errors.New("invalid name")
)

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", " ", "\n", " ")

// Options configures a Server.
type Options struct {
	// InputPath is the file or FIFO the server reads console commands from.
	InputPath string
	// DataDir holds RoleSetup.json, BanList.json and Saves/.
	DataDir          string
	MapChangeTimeout time.Duration
	Logger           *slog.Logger
}

// Server implements hostfunc.Console.
type Server struct {
	opts   Options
	bus    Bus
	roster *Roster
	logger *slog.Logger

	writeMu sync.Mutex
}

var _ hostfunc.Console = (*Server)(nil)

func NewServer(opts Options, bus Bus, roster *Roster) *Server {
	if opts.MapChangeTimeout <= 0 {
		opts.MapChangeTimeout = DefaultMapChangeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if roster == nil {
		roster = NewRoster()
	}
	return &Server{
		opts:   opts,
		bus:    bus,
		roster: roster,
		logger: logger.With("component", "console"),
	}
}

// Writeln appends one raw line to the console input. Embedded newlines are
// flattened so a plugin cannot inject a second command.
func (s *Server) Writeln(ctx context.Context, line string) error {
	if s.opts.InputPath == "" {
		return ErrNoInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	line = strings.NewReplacer("\r", " ", "\n", " ").Replace(line)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.opts.InputPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open console input: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write console input: %w", err)
	}
	s.logger.Debug("console write", "line", line)
	return nil
}

func (s *Server) Broadcast(ctx context.Context, lines ...string) error {
	for _, line := range lines {
		if err := s.Writeln(ctx, "Chat.Broadcast "+quote(line)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Whisper(ctx context.Context, target, message string) error {
	return s.Writeln(ctx, "Chat.Whisper "+quote(target)+" "+quote(message))
}

func (s *Server) Players(context.Context) ([]hostfunc.Player, error) {
	return s.roster.Players(), nil
}

func (s *Server) RoleSetup(context.Context) (json.RawMessage, error) {
	return s.readJSON(RoleSetupFile)
}

func (s *Server) BanList(context.Context) (json.RawMessage, error) {
	return s.readJSON(BanListFile)
}

// Saves lists save names (without extension), sorted. A missing Saves dir is
// an empty list.
func (s *Server) Saves(context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.opts.DataDir, SavesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list saves: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SaveExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), SaveExt))
	}
	sort.Strings(out)
	return out, nil
}

// SavePath returns the absolute path of a save, or "" when it does not exist.
func (s *Server) SavePath(_ context.Context, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(s.opts.DataDir, SavesDir, name+SaveExt))
	if err != nil {
		return "", fmt.Errorf("failed to resolve save path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat save: %w", err)
	}
	return path, nil
}

func (s *Server) ClearBricks(ctx context.Context, target string, quiet bool) error {
	return s.Writeln(ctx, "Bricks.Clear "+quote(target)+" "+flag(quiet))
}

func (s *Server) ClearAllBricks(ctx context.Context, quiet bool) error {
	return s.Writeln(ctx, "Bricks.ClearAll "+flag(quiet))
}

func (s *Server) SaveBricks(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.Writeln(ctx, "Bricks.Save "+quote(name))
}

func (s *Server) LoadBricks(ctx context.Context, name string, offset hostfunc.Offset, quiet bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	return s.Writeln(ctx, fmt.Sprintf("Bricks.Load %s %d %d %d %s", quote(name), offset.X, offset.Y, offset.Z, flag(quiet)))
}

// ChangeMap asks the server to travel and waits for the mapchange event.
// It reports false when the event does not arrive in time.
func (s *Server) ChangeMap(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	if s.bus == nil {
		return false, s.Writeln(ctx, "Server.Travel "+quote(name))
	}

	ch, cancel := s.bus.SubscribeLossless()
	defer cancel()

	if err := s.Writeln(ctx, "Server.Travel "+quote(name)); err != nil {
		return false, err
	}

	timer := time.NewTimer(s.opts.MapChangeTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false, nil
			}
			if ev.Type == EventMapChange {
				return true, nil
			}
		case <-timer.C:
			s.logger.Warn("map change not confirmed", "map", name, "timeout", s.opts.MapChangeTimeout)
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// readJSON returns the file's JSON, or null when it does not exist.
func (s *Server) readJSON(name string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.opts.DataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return json.RawMessage("null"), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", name)
	}
	return json.RawMessage(data), nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func quote(s string) string {
	return `"` + quoter.Replace(s) + `"`
}

func flag(b bool) string {
	return strconv.FormatBool(b)
}
