package console

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/hostfunc"
)

func TestRoster_Apply(t *testing.T) {
	r := NewRoster()

	r.Apply(events.Event{Type: EventJoin, Args: []any{map[string]any{"name": "alice", "id": "a-1", "controller": "c1"}}})
	r.Apply(events.Event{Type: EventJoin, Args: []any{"bob"}})
	r.Apply(events.Event{Type: EventJoin, Args: []any{map[string]any{"name": "carol", "id": "c-3"}}})
	assert.Equal(t, []hostfunc.Player{
		{Name: "alice", ID: "a-1", Controller: "c1"},
		{Name: "bob"},
		{Name: "carol", ID: "c-3"},
	}, r.Players())

	// Rejoin replaces in place.
	r.Apply(events.Event{Type: EventJoin, Args: []any{map[string]any{"name": "alice", "id": "a-1", "state": "playing"}}})
	assert.Equal(t, "playing", r.Players()[0].State)
	assert.Len(t, r.Players(), 3)

	r.Apply(events.Event{Type: EventLeave, Args: []any{map[string]any{"name": "alice", "id": "a-1"}}})
	r.Apply(events.Event{Type: EventLeave, Args: []any{"bob"}})
	assert.Equal(t, []hostfunc.Player{{Name: "carol", ID: "c-3"}}, r.Players())

	// Webhook ingress forwards raw JSON.
	r.Apply(events.Event{Type: EventJoin, Args: []any{json.RawMessage(`"erin"`)}})
	r.Apply(events.Event{Type: EventLeave, Args: []any{json.RawMessage(`{"name":"erin"}`)}})
	assert.Len(t, r.Players(), 1)

	// Ignored shapes.
	r.Apply(events.Event{Type: EventJoin})
	r.Apply(events.Event{Type: EventJoin, Args: []any{""}})
	r.Apply(events.Event{Type: EventJoin, Args: []any{42}})
	r.Apply(events.Event{Type: "chat", Args: []any{"dave"}})
	r.Apply(events.Event{Type: EventLeave, Args: []any{"nobody"}})
	assert.Len(t, r.Players(), 1)
}

func TestRoster_PlayersIsACopy(t *testing.T) {
	r := NewRoster()
	r.Apply(events.Event{Type: EventJoin, Args: []any{"alice"}})

	players := r.Players()
	players[0].Name = "mallory"
	assert.Equal(t, "alice", r.Players()[0].Name)
	assert.NotNil(t, NewRoster().Players())
}

func TestRoster_Follow(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := events.NewHub(8)
	r := NewRoster()
	stop := r.Follow(hub)

	hub.Publish(EventJoin, "alice")
	hub.Publish(EventJoin, "bob")
	hub.Publish(EventLeave, "alice")
	require.Eventually(t, func() bool {
		players := r.Players()
		return len(players) == 1 && players[0].Name == "bob"
	}, time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(EventJoin, "carol")
	assert.Len(t, r.Players(), 1)
}

func TestRoster_FollowSurvivesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := events.NewHub(8)
	r := NewRoster()
	stop := r.Follow(hub)
	defer stop()

	total := 2 * events.SubscriberBuffer
	for i := 0; i < total; i++ {
		hub.Publish(EventJoin, fmt.Sprintf("p%d", i))
	}
	for i := 0; i < total-1; i++ {
		hub.Publish(EventLeave, fmt.Sprintf("p%d", i))
	}

	want := fmt.Sprintf("p%d", total-1)
	require.Eventually(t, func() bool {
		players := r.Players()
		return len(players) == 1 && players[0].Name == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRoster_InitialState(t *testing.T) {
	r := NewRoster()
	assert.Empty(t, r.InitialState(context.Background()))

	r.Apply(events.Event{Type: EventJoin, Args: []any{"alice"}})
	r.Apply(events.Event{Type: EventJoin, Args: []any{map[string]any{"name": "bob", "id": "76561"}}})

	evs := r.InitialState(context.Background())
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, EventJoin, ev.Type)
		require.Len(t, ev.Args, 1)
	}
	assert.Equal(t, hostfunc.Player{Name: "alice"}, evs[0].Args[0])
	assert.Equal(t, hostfunc.Player{Name: "bob", ID: "76561"}, evs[1].Args[0])

	// A fresh roster fed the snapshot ends up identical.
	mirror := NewRoster()
	for _, ev := range evs {
		mirror.Apply(ev)
	}
	assert.Equal(t, r.Players(), mirror.Players())
}
