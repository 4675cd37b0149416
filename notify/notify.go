// Package notify delivers change events produced by the tree, workspace and
// import services. Delivery is best-effort: Publish never fails the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// EventType names a change event.
type EventType string

const (
	NodeCreated      EventType = "node.created"
	NodeUpdated      EventType = "node.updated"
	NodeDeleted      EventType = "node.deleted"
	RequestUpdated   EventType = "request.updated"
	TreeCloned       EventType = "tree.cloned"
	WorkspaceUpdated EventType = "workspace.updated"
	WorkspaceDeleted EventType = "workspace.deleted"
)

// Event is one change announcement. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspaceId"`
	NodeID      string    `json:"nodeId,omitempty"`
	RootID      string    `json:"rootId,omitempty"`
	Count       int       `json:"count,omitempty"`
	Name        string    `json:"name,omitempty"`
}

// Notifier accepts events. Implementations must not block for long and
// must not report failures to the caller.
type Notifier interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Publish(ctx, e)
		}
	}
}

// LogNotifier writes every event to a logger at debug level.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs events
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Publish(ctx context.Context, e Event) {
	l.logger.DebugContext(ctx, "change event",
		"type", e.Type,
		"workspace_id", e.WorkspaceID,
		"node_id", e.NodeID,
		"root_id", e.RootID,
		"count", e.Count,
	)
}

// Recorder keeps every published event; used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Counter is the subset of the metrics collectors used by Counted.
type Counter interface {
	Event(eventType string)
}

// Counted wraps a notifier and counts every event it sees.
type Counted struct {
	Next    Notifier
	Counter Counter
}

func (c Counted) Publish(ctx context.Context, e Event) {
	if c.Counter != nil {
		c.Counter.Event(string(e.Type))
	}
	if c.Next != nil {
		c.Next.Publish(ctx, e)
	}
}
