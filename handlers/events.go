package handlers

import (
	"io"
	"time"

	"github.com/ammiranda/request_tree/notify"

	"github.com/gin-gonic/gin"
)

// DefaultHeartbeat is the interval between keep-alive pings on idle streams.
const DefaultHeartbeat = 25 * time.Second

// EventsHandler streams workspace change events as server-sent events
type EventsHandler struct {
	hub       *notify.Hub
	heartbeat time.Duration
}

// NewEventsHandler creates a new EventsHandler instance
func NewEventsHandler(hub *notify.Hub, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &EventsHandler{hub: hub, heartbeat: heartbeat}
}

// Stream sends a ping, then every event of the workspace until the client
// goes away. Each message carries the event record as data.
func (h *EventsHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe(c.Param("workspaceId"))
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("message", gin.H{"type": "ping"})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	done := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", e)
			return true
		case <-ticker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			return true
		}
	})
}
