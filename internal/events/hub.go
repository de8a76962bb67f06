// Package events is the host-wide event bus. The console parser and the
// webhook ingress publish (type, args) pairs. Plugins and the roster take
// lossless subscriptions; SSE clients take bounded ones that drop.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one opaque host event. Args are forwarded to plugins unchanged, so
// they must be JSON-encodable.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Args []any     `json:"args"`
}

// SubscriberBuffer is the channel capacity of each subscription.
const SubscriberBuffer = 256

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	queues    map[int]*queue
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs:   make(map[int]chan Event),
		queues: make(map[int]*queue),
	}
}

// Publish records an event and fans it out to every subscriber.
func (h *Hub) Publish(eventType string, args ...any) Event {
	if args == nil {
		args = []any{}
	}
	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Args: args,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	for _, q := range h.queues {
		q.push(ev)
	}
	h.mu.Unlock()
	return ev
}

// Subscribe returns a channel receiving every event published after the call
// and a cancel func that closes it. Cancel is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, SubscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SubscribeLossless is Subscribe without drops: events wait in an unbounded
// per-subscriber queue until the consumer reads them. Cancel discards
// whatever is still queued, closes the channel and returns once the
// forwarding goroutine has exited.
func (h *Hub) SubscribeLossless() (<-chan Event, func()) {
	q := &queue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.queues[id] = q
	h.mu.Unlock()

	go q.run()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.queues, id)
			h.mu.Unlock()
			close(q.quit)
		})
		<-q.done
	}
	return q.out, cancel
}

// Subscribers returns the number of live subscriptions of either kind.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) + len(h.queues)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

// queue backs one lossless subscription.
type queue struct {
	mu      sync.Mutex
	pending []Event

	wake chan struct{}
	out  chan Event
	quit chan struct{}
	done chan struct{}
}

func (q *queue) push(ev Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) run() {
	defer close(q.done)
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			select {
			case q.out <- ev:
			case <-q.quit:
				return
			}
		}

		select {
		case <-q.wake:
		case <-q.quit:
			return
		}
	}
}

