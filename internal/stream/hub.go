// Package stream drives continuous transaction emission: a controller state
// machine owns the periodic generation loop, and a hub fans every emitted
// batch out to connected subscribers.
package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"harborbank/txstream/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// lets its buffer fill is disconnected rather than slowing the loop or
// silently missing batches: the contract is that every *connected*
// subscriber sees every batch, in order.
const subscriberBuffer = 16

// Hub broadcasts batch events to any number of subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan domain.BatchEvent
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]chan domain.BatchEvent)}
}

// Subscribe registers a new subscriber and returns its identity and event
// channel. The channel is closed by the hub when the subscriber is dropped
// for falling behind; otherwise it stays open until Unsubscribe.
// A new subscription starts receiving from the next emitted batch — there is
// no replay of batches emitted before it existed.
func (h *Hub) Subscribe() (uuid.UUID, <-chan domain.BatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	ch := make(chan domain.BatchEvent, subscriberBuffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call for
// a subscriber the hub has already dropped.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Broadcast delivers the event to every subscriber without blocking the
// emission loop. Subscribers whose buffers are full are disconnected.
func (h *Hub) Broadcast(ev domain.BatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop it so the remaining subscribers keep
			// the receive-every-batch guarantee.
			delete(h.subs, id)
			close(ch)
			slog.Warn("stream: dropped slow subscriber", "subscriber_id", id)
		}
	}
}

// Subscribers returns how many subscribers are currently connected.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
