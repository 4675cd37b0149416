// Package ratelimit implements a fixed-window request counter keyed by
// (operation class, actor).
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ammiranda/request_tree/internal/logging"
)

// Operation classes throttled by the HTTP layer.
const (
	ClassExecute = "runner.execute"
	ClassImport  = "postman.import"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Store counts hits per key. Incr increments the counter for key and
// returns the new value; a counter older than ttl starts again from zero.
type Store interface {
	Incr(ctx context.Context, key string, now time.Time, ttl time.Duration) (int64, error)
}

// Rule is the allowance of one operation class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter applies fixed-window rules per operation class.
type Limiter struct {
	store  Store
	clock  Clock
	rules  map[string]Rule
	logger *slog.Logger
}

type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRule sets the rule of an operation class.
func WithRule(class string, limit int, window time.Duration) Option {
	return func(l *Limiter) {
		l.rules[class] = Rule{Limit: limit, Window: window}
	}
}

// New creates a limiter over the given store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		clock:  ClockFunc(time.Now),
		rules:  make(map[string]Rule),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the rule of a class.
func (l *Limiter) Rule(class string) (Rule, bool) {
	r, ok := l.rules[class]
	return r, ok
}

// Allow records a hit for (class, actor) and reports whether it fits the
// window. Classes without a rule are always allowed. Store failures allow
// the hit and are logged.
func (l *Limiter) Allow(ctx context.Context, class, actor string) (Decision, error) {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := l.clock.Now()
	windowMs := rule.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	index := now.UnixMilli() / windowMs
	windowEnd := time.UnixMilli((index + 1) * windowMs)
	key := fmt.Sprintf("%s:%s:%s", class, actor, strconv.FormatInt(index, 10))

	count, err := l.store.Incr(ctx, key, now, windowEnd.Sub(now))
	if err != nil {
		l.logger.Warn("rate limit store failed", "class", class, "error", err)
		return Decision{Allowed: true, Limit: rule.Limit}, err
	}

	d := Decision{
		Allowed: count <= int64(rule.Limit),
		Count:   count,
		Limit:   rule.Limit,
	}
	if !d.Allowed {
		d.RetryAfter = windowEnd.Sub(now)
	}
	return d, nil
}
