package notify

import (
	"context"
	"sync"
)

// Hub fans events out to in-process subscribers of a workspace, backing the
// server-sent event stream. Slow subscribers lose events rather than block
// publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber for a workspace. The returned cancel
// function unregisters it and closes the channel.
func (h *Hub) Subscribe(workspaceID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	if h.subs[workspaceID] == nil {
		h.subs[workspaceID] = make(map[chan Event]struct{})
	}
	h.subs[workspaceID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[workspaceID], ch)
			if len(h.subs[workspaceID]) == 0 {
				delete(h.subs, workspaceID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many subscribers a workspace has.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspaceID])
}

// Publish delivers e to every subscriber of its workspace. Subscribers
// whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.WorkspaceID] {
		select {
		case ch <- e:
		default:
		}
	}
}
