package state

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
)

// Scope is a Backend bound to one plugin. It satisfies hostfunc.Store.
type Scope struct {
	backend  Backend
	plugin   string
	defaults map[string]any
}

// NewScope binds b to plugin. defaults fill config keys the stored config lacks.
func NewScope(b Backend, plugin string, defaults map[string]any) *Scope {
	return &Scope{backend: b, plugin: plugin, defaults: defaults}
}

func (s *Scope) Plugin() string { return s.plugin }

func (s *Scope) Get(ctx context.Context, key string) (json.RawMessage, error) {
	return s.backend.Get(ctx, s.plugin, key)
}

func (s *Scope) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.backend.Set(ctx, s.plugin, key, value)
}

func (s *Scope) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.plugin, key)
}

func (s *Scope) Wipe(ctx context.Context) error {
	return s.backend.Wipe(ctx, s.plugin)
}

func (s *Scope) Count(ctx context.Context) (int, error) {
	return s.backend.Count(ctx, s.plugin)
}

func (s *Scope) Keys(ctx context.Context) ([]string, error) {
	return s.backend.Keys(ctx, s.plugin)
}

// GetConfig returns the defaults overlaid with the stored config.
func (s *Scope) GetConfig(ctx context.Context) (map[string]any, error) {
	raw, err := s.backend.GetConfig(ctx, s.plugin)
	if err != nil {
		return nil, err
	}
	stored := map[string]any{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode config for plugin=%q: %w", s.plugin, err)
	}

	out := make(map[string]any, len(s.defaults)+len(stored))
	maps.Copy(out, s.defaults)
	maps.Copy(out, stored)
	return out, nil
}

// MergeConfig shallow-merges updates into the stored config.
func (s *Scope) MergeConfig(ctx context.Context, updates map[string]any) error {
	raw, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encode config updates: %w", err)
	}
	_, err = s.backend.MergeConfig(ctx, s.plugin, raw)
	return err
}
