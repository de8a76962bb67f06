package state

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/brickhost/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

// exerciseBackend runs the same contract against any Backend.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	got, err := b.Get(ctx, "p", "missing")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing key, got %s", got)
	}

	for _, kv := range []struct{ k, v string }{{"b", `2`}, {"a", `{"x":1}`}, {"c", `"s"`}} {
		if err := b.Set(ctx, "p", kv.k, json.RawMessage(kv.v)); err != nil {
			t.Fatalf("Set %s: %v", kv.k, err)
		}
	}
	if err := b.Set(ctx, "other", "a", json.RawMessage(`true`)); err != nil {
		t.Fatalf("Set other: %v", err)
	}

	got, err = b.Get(ctx, "p", "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"x":1}` {
		t.Fatalf("unexpected value: %s", got)
	}

	if err := b.Set(ctx, "p", "a", json.RawMessage(`[1]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = b.Get(ctx, "p", "a")
	if string(got) != `[1]` {
		t.Fatalf("overwrite not applied: %s", got)
	}

	keys, err := b.Keys(ctx, "p")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if strings.Join(keys, ",") != "a,b,c" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	n, err := b.Count(ctx, "p")
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	if err := b.Delete(ctx, "p", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := b.Count(ctx, "p"); n != 2 {
		t.Fatalf("Count after delete = %d, want 2", n)
	}

	if err := b.Wipe(ctx, "p"); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if n, _ := b.Count(ctx, "p"); n != 0 {
		t.Fatalf("Count after wipe = %d, want 0", n)
	}
	keys, _ = b.Keys(ctx, "p")
	if len(keys) != 0 {
		t.Fatalf("expected no keys after wipe, got %v", keys)
	}

	// Other plugins are untouched.
	if n, _ := b.Count(ctx, "other"); n != 1 {
		t.Fatalf("other plugin count = %d, want 1", n)
	}

	cfg, err := b.GetConfig(ctx, "p")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if string(cfg) != "{}" {
		t.Fatalf("expected {}, got %s", cfg)
	}

	if _, err := b.MergeConfig(ctx, "p", json.RawMessage(`{"a":1,"b":{"x":1}}`)); err != nil {
		t.Fatalf("MergeConfig (1): %v", err)
	}
	merged, err := b.MergeConfig(ctx, "p", json.RawMessage(`{"b":{"y":2}}`))
	if err != nil {
		t.Fatalf("MergeConfig (2): %v", err)
	}
	// "b" is replaced, not deep-merged.
	if string(merged) != `{"a":1,"b":{"y":2}}` {
		t.Fatalf("unexpected merged config: %s", merged)
	}
	cfg, _ = b.GetConfig(ctx, "p")
	if string(cfg) != string(merged) {
		t.Fatalf("GetConfig = %s, want %s", cfg, merged)
	}
}

func TestStoreBackendContract(t *testing.T) {
	t.Parallel()
	exerciseBackend(t, openTestStore(t))
}

func TestStoreRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Set(context.Background(), "p", "k", json.RawMessage(`{nope`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	big := `"` + strings.Repeat("a", DefaultMaxValueBytes) + `"`
	if err := s.Set(context.Background(), "p", "k", json.RawMessage(big)); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestStoreMergeConfigRejectsNonObject(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.MergeConfig(context.Background(), "p", json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("expected error for array update")
	}
}

func TestStoreRequiresPluginName(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "", "k"); err == nil {
		t.Fatal("expected error for empty plugin name")
	}
	if _, err := s.GetConfig(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty plugin name")
	}
}

func TestStoreSetMaxValueBytes(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	s.SetMaxValueBytes(8)
	if err := s.Set(context.Background(), "p", "k", json.RawMessage(`"short"`)); err != nil {
		t.Fatalf("Set within limit: %v", err)
	}
	if err := s.Set(context.Background(), "p", "k", json.RawMessage(`"too long"`)); err == nil {
		t.Fatal("expected size limit error")
	}

	s.SetMaxValueBytes(0)
	if err := s.Set(context.Background(), "p", "k", json.RawMessage(`"too long"`)); err != nil {
		t.Fatalf("Set after reset: %v", err)
	}
}
