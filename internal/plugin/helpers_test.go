package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"go.uber.org/goleak"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/hostfunc/mocks"
	"github.com/mattjoyce/brickhost/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	goleak.VerifyTestMain(m)
}

// Shared prologue for test plugins: parses id and method with bash builtins
// only, so no grandchild outlives the plugin.
const scriptPrologue = `#!/bin/bash
re_id='"id":([0-9]+)'
re_method='"method":"([^"]+)"'
parse() {
  id=""; method=""
  if [[ $line =~ $re_id ]]; then id=${BASH_REMATCH[1]}; fi
  if [[ $line =~ $re_method ]]; then method=${BASH_REMATCH[1]}; fi
}
`

// responderScript answers init with two commands, stop with null and ping
// with "pong". Notifications are appended to events.log.
const responderScript = scriptPrologue + `
while IFS= read -r line; do
  parse
  if [[ -z $id ]]; then
    printf '%s\n' "$line" >> events.log
    continue
  fi
  case "$method" in
    init)
      printf '%s\n' "$line" > init.log
      printf '{"jsonrpc":"2.0","id":%s,"result":{"registeredCommands":["a","b"]}}\n' "$id" ;;
    stop) printf '{"jsonrpc":"2.0","id":%s,"result":null}\n' "$id" ;;
    ping) printf '{"jsonrpc":"2.0","id":%s,"result":"pong"}\n' "$id" ;;
    *) printf '{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}\n' "$id" ;;
  esac
done
`

// frozenScript never answers; it records SIGINT before exiting.
const frozenScript = `#!/bin/bash
trap 'echo interrupted > signalled; exit 0' INT
while :; do IFS= read -r line || true; done
`

// stubbornScript never answers and ignores SIGINT.
const stubbornScript = `#!/bin/bash
trap '' INT
while :; do IFS= read -r line || true; done
`

const crashScript = `#!/bin/bash
echo "fatal: missing dependency" >&2
exit 3
`

// replyScript answers init with the given result or error JSON fragment.
func replyScript(fragment string) string {
	return scriptPrologue + `
while IFS= read -r line; do
  parse
  [[ -z $id ]] && continue
  case "$method" in
    init) printf '{"jsonrpc":"2.0","id":%s,` + fragment + `}\n' "$id" ;;
    *) printf '{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}\n' "$id" ;;
  esac
done
`
}

func writePlugin(t *testing.T, name, script string) *Definition {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := "name: " + name + "\nversion: 0.1.0\ndescription: test plugin\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, EntrypointFilename), []byte(script), 0o755); err != nil {
		t.Fatalf("write entrypoint: %v", err)
	}

	def, err := LoadDefinition(dir)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	return def
}

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	config map[string]any
}

func newMemStore(config map[string]any) *memStore {
	if config == nil {
		config = map[string]any{}
	}
	return &memStore{values: map[string]json.RawMessage{}, config: config}
}

func (s *memStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *memStore) Set(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]json.RawMessage{}
	return nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values), nil
}

func (s *memStore) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memStore) GetConfig(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, nil
}

// statusLog records every status the supervisor publishes.
type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) record(st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, st)
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.all...)
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	inst     *Instance
	def      *Definition
	store    *memStore
	hub      *events.Hub
	statuses *statusLog
	logs     *syncBuffer
}

type harnessOption func(*Options)

func newHarness(t *testing.T, script string, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		def:      writePlugin(t, "tester", script),
		store:    newMemStore(map[string]any{"greeting": "hi"}),
		hub:      events.NewHub(16),
		statuses: &statusLog{},
		logs:     &syncBuffer{},
	}
	o := Options{
		Timeout:   2 * time.Second,
		KillGrace: 200 * time.Millisecond,
		OnStatus:  h.statuses.record,
		Logger:    slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	for _, opt := range opts {
		opt(&o)
	}
	console := mocks.NewMockConsole(gomock.NewController(t))
	h.inst = NewInstance(h.def, h.store, h.hub, console, o)
	t.Cleanup(h.inst.Kill)
	return h
}

func withTimeout(d time.Duration) harnessOption {
	return func(o *Options) { o.Timeout = d }
}

func withInitialState(evs ...events.Event) harnessOption {
	return func(o *Options) {
		o.InitialState = func(context.Context) []events.Event { return evs }
	}
}

// readLines returns the non-empty lines of a file the plugin wrote.
func (h *harness) readLines(name string) []string {
	data, err := os.ReadFile(filepath.Join(h.def.Dir, name))
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (h *harness) fileExists(name string) bool {
	_, err := os.Stat(filepath.Join(h.def.Dir, name))
	return err == nil
}
