// internal/app/membership/events.go
package membership

import "sync"

// Hub broadcasts reconciliation results to subscribers. It replaces the
// polling timers and global mutable current-group state the screens
// used to carry: consumers subscribe once and react to transitions.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Resolution
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Resolution)}
}

// Subscribe registers a listener. The returned cancel function must be
// called when the consumer goes away; it closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Resolution, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Resolution, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers res to every subscriber. Delivery is non-blocking: a
// subscriber whose buffer is full misses the event rather than stalling
// the reconciler; each published Resolution is a full snapshot, so a
// later event supersedes anything missed.
func (h *Hub) Publish(res Resolution) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- res:
		default:
		}
	}
}
