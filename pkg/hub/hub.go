package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-blink/internal/log"
)

// Hub owns a set of subscribers. A single goroutine (Run) mutates the set;
// everyone else talks to it over channels.
type Hub struct {
	name string

	subs       map[*Subscriber]struct{}
	broadcast  chan Message
	register   chan *Subscriber
	unregister chan *Subscriber

	count   atomic.Int32
	dropped atomic.Uint64

	startOnce sync.Once
	done      chan struct{}
}

// New creates a hub. Call Run before registering subscribers.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		subs:       make(map[*Subscriber]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		done:       make(chan struct{}),
	}
}

// Run services the hub until ctx is cancelled, then closes every subscriber.
// Extra calls return immediately.
func (h *Hub) Run(ctx context.Context) {
	started := false
	h.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for s := range h.subs {
				h.remove(s)
			}
			return

		case s := <-h.register:
			h.subs[s] = struct{}{}
			h.count.Store(int32(len(h.subs)))
			log.Debug("hub subscriber joined", "hub", h.name, "subscribers", len(h.subs))

		case s := <-h.unregister:
			if _, ok := h.subs[s]; ok {
				h.remove(s)
				log.Debug("hub subscriber left", "hub", h.name, "subscribers", len(h.subs))
			}

		case msg := <-h.broadcast:
			for s := range h.subs {
				select {
				case s.send <- msg:
				default:
					// Slow reader; cut it loose rather than stall the others.
					h.remove(s)
					log.Warn("hub dropped slow subscriber", "hub", h.name)
				}
			}
		}
	}
}

// remove must only be called from Run.
func (h *Hub) remove(s *Subscriber) {
	delete(h.subs, s)
	close(s.send)
	h.count.Store(int32(len(h.subs)))
}

// Broadcast queues msg for every subscriber. It never blocks; when the hub
// is backed up the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastJSON marshals v and broadcasts it as text.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := JSONMessage(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts raw bytes.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(BinaryMessage(data))
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// Dropped returns how many broadcasts were discarded because the hub was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Name returns the hub name used in logs.
func (h *Hub) Name() string {
	return h.name
}
