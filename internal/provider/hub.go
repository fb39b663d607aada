package provider

import "sync"

// Hub fans session-change events out to subscribers. Provider
// implementations embed one and publish into it; the synchronizer is the
// usual (often only) subscriber.
//
// Delivery is synchronous. Subscribers must not block for long: a slow
// subscriber stalls every later one and the publisher itself.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns the handle that removes it. Releasing
// the handle twice is harmless.
func (h *Hub) Subscribe(fn func(Event)) Unsubscribe {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers e to every current subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	// Invoke outside the lock so a subscriber may unsubscribe (or a
	// provider may publish again) without deadlocking.
	for _, fn := range fns {
		fn(e)
	}
}
