// Package state persists plugin key-value data and plugin configuration.
//
// Two backends implement Backend: Store on SQLite (the default) and
// RedisStore. Plugins never see a backend directly; they get a Scope bound to
// their name.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

const DefaultMaxValueBytes = 1 << 20 // 1 MiB per value or config blob

// Backend stores values keyed by (plugin, key) plus one config object per plugin.
type Backend interface {
	Get(ctx context.Context, plugin, key string) (json.RawMessage, error)
	Set(ctx context.Context, plugin, key string, value json.RawMessage) error
	Delete(ctx context.Context, plugin, key string) error
	Wipe(ctx context.Context, plugin string) error
	Count(ctx context.Context, plugin string) (int, error)
	Keys(ctx context.Context, plugin string) ([]string, error)

	// GetConfig returns the stored config object, or {} if missing.
	GetConfig(ctx context.Context, plugin string) (json.RawMessage, error)
	// MergeConfig shallow-merges updates into the stored config and returns
	// the result.
	MergeConfig(ctx context.Context, plugin string, updates json.RawMessage) (json.RawMessage, error)
}

// Store is the SQLite backend.
type Store struct {
	db           *sql.DB
	maxValueByte int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		maxValueByte: DefaultMaxValueBytes,
	}
}

// SetMaxValueBytes caps the encoded size of one value or config object.
// n <= 0 restores the default.
func (s *Store) SetMaxValueBytes(n int) {
	if n <= 0 {
		n = DefaultMaxValueBytes
	}
	s.maxValueByte = n
}

// Get returns the stored value, or nil if the key does not exist.
func (s *Store) Get(ctx context.Context, plugin, key string) (json.RawMessage, error) {
	if plugin == "" {
		return nil, fmt.Errorf("plugin name is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM plugin_store WHERE plugin_name = ? AND key = ?;", plugin, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin value: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (s *Store) Set(ctx context.Context, plugin, key string, value json.RawMessage) error {
	if plugin == "" {
		return fmt.Errorf("plugin name is empty")
	}
	if err := checkValue(value, s.maxValueByte); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO plugin_store(plugin_name, key, value, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(plugin_name, key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, plugin, key, string(value), now)
	if err != nil {
		return fmt.Errorf("upsert plugin value: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, plugin, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM plugin_store WHERE plugin_name = ? AND key = ?;", plugin, key); err != nil {
		return fmt.Errorf("delete plugin value: %w", err)
	}
	return nil
}

func (s *Store) Wipe(ctx context.Context, plugin string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM plugin_store WHERE plugin_name = ?;", plugin); err != nil {
		return fmt.Errorf("wipe plugin store: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, plugin string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plugin_store WHERE plugin_name = ?;", plugin).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plugin store: %w", err)
	}
	return n, nil
}

// Keys returns the plugin's keys in lexical order.
func (s *Store) Keys(ctx context.Context, plugin string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM plugin_store WHERE plugin_name = ? ORDER BY key;", plugin)
	if err != nil {
		return nil, fmt.Errorf("list plugin keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan plugin key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plugin keys: %w", err)
	}
	return keys, nil
}

func (s *Store) GetConfig(ctx context.Context, plugin string) (json.RawMessage, error) {
	if plugin == "" {
		return nil, fmt.Errorf("plugin name is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT config FROM plugin_config WHERE plugin_name = ?;", plugin).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin config: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored plugin config is invalid JSON for plugin=%q", plugin)
	}
	return json.RawMessage(raw), nil
}

func (s *Store) MergeConfig(ctx context.Context, plugin string, updates json.RawMessage) (json.RawMessage, error) {
	if plugin == "" {
		return nil, fmt.Errorf("plugin name is empty")
	}

	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode config updates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT config FROM plugin_config WHERE plugin_name = ?;", plugin).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		curRaw = "{}"
	} else if err != nil {
		return nil, fmt.Errorf("read plugin config: %w", err)
	}

	merged, err := mergeObjects(json.RawMessage(curRaw), upd, s.maxValueByte)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
INSERT INTO plugin_config(plugin_name, config, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(plugin_name) DO UPDATE SET
  config = excluded.config,
  updated_at = excluded.updated_at;
`, plugin, string(merged), now)
	if err != nil {
		return nil, fmt.Errorf("upsert plugin config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return merged, nil
}

func checkValue(value json.RawMessage, limit int) error {
	if !json.Valid(value) {
		return fmt.Errorf("value is not valid JSON")
	}
	if len(value) > limit {
		return fmt.Errorf("value exceeds max size (%d bytes)", limit)
	}
	return nil
}

// mergeObjects replaces top-level keys of cur with those in upd.
func mergeObjects(cur json.RawMessage, upd map[string]json.RawMessage, limit int) (json.RawMessage, error) {
	base, err := decodeObjectOrEmpty(cur)
	if err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	maps.Copy(base, upd)

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal merged config: %w", err)
	}
	if len(merged) > limit {
		return nil, fmt.Errorf("plugin config exceeds max size (%d bytes)", limit)
	}
	return merged, nil
}

func decodeObjectOrEmpty(b json.RawMessage) (map[string]json.RawMessage, error) {
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("invalid JSON")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}
