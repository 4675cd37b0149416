package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func TestLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(60_000 * 1000)}
	limiter := New(NewMemoryStore(),
		WithClock(clock),
		WithRule(ClassExecute, 3, time.Minute),
	)

	// Three hits fit the window
	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, ClassExecute, "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.EqualValues(t, i, d.Count)
		assert.Equal(t, 3, d.Limit)
	}

	// The fourth is rejected until the window ends
	clock.Advance(20 * time.Second)
	d, err := limiter.Allow(ctx, ClassExecute, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	// Other actors have their own counter
	d, err = limiter.Allow(ctx, ClassExecute, "bob")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// A new window starts from zero
	clock.Advance(40 * time.Second)
	d, err = limiter.Allow(ctx, ClassExecute, "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.EqualValues(t, 1, d.Count)
}

func TestLimiterUnknownClass(t *testing.T) {
	limiter := New(NewMemoryStore(), WithRule(ClassImport, 1, time.Minute))

	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(context.Background(), "other", "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	rule, ok := limiter.Rule(ClassImport)
	assert.True(t, ok)
	assert.Equal(t, Rule{Limit: 1, Window: time.Minute}, rule)
}

func TestLimiterFailsOpen(t *testing.T) {
	limiter := New(failingStore{}, WithRule(ClassExecute, 1, time.Minute))

	d, err := limiter.Allow(context.Background(), ClassExecute, "alice")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreSweepsExpiredCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	_, err := store.Incr(ctx, "a", now, time.Second)
	require.NoError(t, err)
	_, err = store.Incr(ctx, "b", now, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	count, err := store.Incr(ctx, "a", now.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 1, store.Len())
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	// Setup miniredis
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := &fakeClock{now: time.UnixMilli(60_000 * 1000)}
	limiter := New(NewRedisStore(client, "test:"),
		WithClock(clock),
		WithRule(ClassImport, 2, time.Minute),
	)

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, ClassImport, "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := limiter.Allow(ctx, ClassImport, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.EqualValues(t, 3, d.Count)

	key := "test:postman.import:alice:1000"
	assert.True(t, mr.Exists(key), "counter key should be set in Redis")
	assert.Equal(t, time.Minute, mr.TTL(key))

	// The counter expires with its window
	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(key))
}
