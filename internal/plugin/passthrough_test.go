package plugin

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattjoyce/brickhost/internal/events"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []events.Event
}

func (r *recordingNotifier) Notify(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	args, _ := params.([]any)
	r.calls = append(r.calls, events.Event{Type: method, Args: args})
}

func (r *recordingNotifier) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestPassthrough_ForwardsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := events.NewHub(8)
	target := &recordingNotifier{}
	p := startPassthrough(hub, target)
	require.Equal(t, 1, hub.Subscribers())

	hub.Publish("join", "alice")
	hub.Publish("leave", "alice", "timeout")
	require.Eventually(t, func() bool { return target.len() == 2 }, time.Second, 5*time.Millisecond)

	p.stop()
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish("join", "bob")
	assert.Equal(t, 2, target.len())

	assert.Equal(t, "join", target.calls[0].Type)
	assert.Equal(t, []any{"alice"}, target.calls[0].Args)
	assert.Equal(t, "leave", target.calls[1].Type)
	assert.Equal(t, []any{"alice", "timeout"}, target.calls[1].Args)
}
