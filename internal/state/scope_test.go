package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeBindsPlugin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := openTestStore(t)
	a := NewScope(s, "alpha", nil)
	b := NewScope(s, "beta", nil)

	require.NoError(t, a.Set(ctx, "k", json.RawMessage(`1`)))
	require.NoError(t, b.Set(ctx, "k", json.RawMessage(`2`)))

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(got))

	require.NoError(t, a.Wipe(ctx))
	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
	assert.Equal(t, "beta", b.Plugin())
}

func TestScopeConfigOverlaysDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := openTestStore(t)
	sc := NewScope(s, "greeter", map[string]any{"greeting": "hello", "volume": float64(3)})

	cfg, err := sc.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello", "volume": float64(3)}, cfg)

	require.NoError(t, sc.MergeConfig(ctx, map[string]any{"greeting": "hi", "extra": true}))

	cfg, err = sc.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi", "volume": float64(3), "extra": true}, cfg)
}
