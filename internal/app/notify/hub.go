package notify

import (
	"sync"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Hub fans lifecycle events out to in-process subscribers of a gathering.
// Slow subscribers miss events rather than block the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[domain.GatheringID]map[chan core.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[domain.GatheringID]map[chan core.Event]struct{})}
}

// Subscribe returns a channel of events for id and a func that ends the
// subscription.
func (h *Hub) Subscribe(id domain.GatheringID) (<-chan core.Event, func()) {
	ch := make(chan core.Event, 4)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan core.Event]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[id]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subs, id)
				}
			}
		})
	}
}

func (h *Hub) Publish(ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.GatheringID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Subscribers(id domain.GatheringID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

// Fanout publishes every event to each notifier in order.
type Fanout []core.Notifier

func (f Fanout) Publish(ev core.Event) {
	for _, n := range f {
		n.Publish(ev)
	}
}
