package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ammiranda/request_tree/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events on a per-workspace Redis channel so other
// processes can relay them. Each publish runs on its own goroutine.
type RedisNotifier struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

type RedisOption func(*RedisNotifier)

// WithChannelPrefix sets the channel prefix.
func WithChannelPrefix(prefix string) RedisOption {
	return func(n *RedisNotifier) {
		n.prefix = prefix
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(n *RedisNotifier) {
		n.timeout = d
	}
}

// WithRedisLogger sets the logger used for delivery failures.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(n *RedisNotifier) {
		n.logger = logger
	}
}

// NewRedisNotifier creates a notifier from an existing client.
func NewRedisNotifier(client *redis.Client, opts ...RedisOption) *RedisNotifier {
	n := &RedisNotifier{
		client:  client,
		prefix:  "request_tree:events:",
		timeout: 2 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Channel returns the channel name for a workspace.
func (n *RedisNotifier) Channel(workspaceID string) string {
	return n.prefix + workspaceID
}

func (n *RedisNotifier) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		n.logger.Warn("encode event", "type", e.Type, "error", err)
		return
	}
	// Detached from the caller so a finished request does not cancel delivery.
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.client.Publish(pubCtx, n.Channel(e.WorkspaceID), payload).Err(); err != nil {
			n.logger.Warn("publish event", "type", e.Type, "workspace_id", e.WorkspaceID, "error", err)
		}
	}()
}

// Relay subscribes to every workspace channel and forwards decoded events
// to dst until ctx is done.
func (n *RedisNotifier) Relay(ctx context.Context, dst Notifier) error {
	sub := n.client.PSubscribe(ctx, n.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				n.logger.Warn("decode event", "channel", msg.Channel, "error", err)
				continue
			}
			dst.Publish(ctx, e)
		}
	}
}
