package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRedisQueue(t *testing.T, opts RedisOptions) (*RedisQueue, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	return NewRedisQueue(client, opts), mr, clock
}

func TestRedisQueueFIFO(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t"})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1, 0))
	require.NoError(t, q.Enqueue(ctx, 2, 0))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.TaskID)
	assert.Equal(t, int64(2), second.TaskID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisQueuePayloadIsTaskID(t *testing.T) {
	q, mr, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t"})
	require.NoError(t, q.Enqueue(context.Background(), 42, 0))

	items, err := mr.List("t:ready")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, items)
}

func TestRedisQueueDelayIsAMinimum(t *testing.T) {
	q, _, clock := newTestRedisQueue(t, RedisOptions{Prefix: "t"})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 7, 30*time.Second))

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	clock.Advance(29 * time.Second)
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	clock.Advance(time.Second)
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.TaskID)
}

func TestRedisQueueAckRemovesInflight(t *testing.T) {
	q, mr, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t", Consumer: "w1"})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 5, 0))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	inflight, _ := mr.List("t:processing:w1")
	assert.Equal(t, []string{"5"}, inflight)

	require.NoError(t, q.Ack(ctx, d))
	assert.False(t, mr.Exists("t:processing:w1"))
}

func TestRedisQueueRecoverRedeliversUnacked(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t", Consumer: "w1"})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 8, 0))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), d.TaskID)
}

func TestRedisQueueDropsMalformedPayload(t *testing.T) {
	q, mr, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t", Consumer: "w1"})
	_, err := mr.Lpush("t:ready", "not-a-number")
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
	assert.False(t, mr.Exists("t:processing:w1"))
}

func TestRedisQueueBlockingDequeueReturnsReadyItem(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, RedisOptions{Prefix: "t", PollTimeout: time.Second})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 3, 0))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.TaskID)
}
