package console

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/hostfunc"
)

// Event types the roster and ChangeMap react to.
const (
	EventJoin      = "join"
	EventLeave     = "leave"
	EventMapChange = "mapchange"
)

// Bus is the subscription side of events.Hub.
type Bus interface {
	SubscribeLossless() (<-chan events.Event, func())
}

// Roster tracks connected players from join and leave events. The first
// argument of either event is a player object or a bare name.
type Roster struct {
	mu      sync.Mutex
	players []hostfunc.Player
}

func NewRoster() *Roster {
	return &Roster{}
}

// Follow applies bus events until the returned stop func is called.
func (r *Roster) Follow(bus Bus) (stop func()) {
	ch, cancel := bus.SubscribeLossless()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			r.Apply(ev)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Apply updates the roster from one event. Other event types are ignored.
func (r *Roster) Apply(ev events.Event) {
	if ev.Type != EventJoin && ev.Type != EventLeave {
		return
	}
	if len(ev.Args) == 0 {
		return
	}
	p, ok := playerFromArg(ev.Args[0])
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(p)
	switch ev.Type {
	case EventJoin:
		if idx >= 0 {
			r.players[idx] = p
			return
		}
		r.players = append(r.players, p)
	case EventLeave:
		if idx >= 0 {
			r.players = append(r.players[:idx], r.players[idx+1:]...)
		}
	}
}

// Players returns a copy of the current roster in join order.
func (r *Roster) Players() []hostfunc.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hostfunc.Player, len(r.players))
	copy(out, r.players)
	return out
}

// InitialState returns one synthetic join event per connected player, for a
// plugin that is loading to rebuild the roster before live events arrive.
func (r *Roster) InitialState(context.Context) []events.Event {
	players := r.Players()
	out := make([]events.Event, 0, len(players))
	now := time.Now()
	for _, p := range players {
		out = append(out, events.Event{Type: EventJoin, At: now, Args: []any{p}})
	}
	return out
}

func (r *Roster) indexLocked(p hostfunc.Player) int {
	for i, existing := range r.players {
		if p.ID != "" && existing.ID == p.ID {
			return i
		}
		if p.ID == "" && existing.Name == p.Name {
			return i
		}
	}
	return -1
}

func playerFromArg(arg any) (hostfunc.Player, bool) {
	if name, ok := arg.(string); ok {
		return hostfunc.Player{Name: name}, name != ""
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return hostfunc.Player{}, false
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return hostfunc.Player{Name: name}, name != ""
	}
	var p hostfunc.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return hostfunc.Player{}, false
	}
	return p, p.Name != "" || p.ID != ""
}
