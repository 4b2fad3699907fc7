package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagebot/internal/infra"
)

// RedisOptions configures RedisQueue.
type RedisOptions struct {
	// Prefix namespaces every key.
	Prefix string
	// Consumer names this worker's in-flight list. It must be stable across
	// restarts so Recover finds the deliveries a crashed run left behind.
	Consumer string
	// PollTimeout bounds a blocking dequeue. Zero makes Dequeue non-blocking.
	PollTimeout time.Duration
	// PromoteBatch limits how many due delayed jobs are moved per dequeue.
	PromoteBatch int
	Logger       *infra.Logger
	Now          func() time.Time
}

// RedisQueue keeps ready ids in a list, delayed ids in a sorted set scored by
// due time, and received ids in a per-consumer in-flight list.
type RedisQueue struct {
	client     redis.Cmdable
	ready      string
	delayed    string
	processing string
	poll       time.Duration
	batch      int
	logger     infra.Logger
	now        func() time.Time
	promote    *redis.Script
}

// promoteScript moves due members of the delayed set onto the ready list
// atomically so a crash cannot drop or duplicate them.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

func NewRedisQueue(client redis.Cmdable, opts RedisOptions) *RedisQueue {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "imagebot:tasks"
	}
	consumer := opts.Consumer
	if consumer == "" {
		consumer = "default"
	}
	batch := opts.PromoteBatch
	if batch <= 0 {
		batch = 100
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &RedisQueue{
		client:     client,
		ready:      prefix + ":ready",
		delayed:    prefix + ":delayed",
		processing: prefix + ":processing:" + consumer,
		poll:       opts.PollTimeout,
		batch:      batch,
		logger:     logger,
		now:        now,
		promote:    promoteScript,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskID int64, delay time.Duration) error {
	payload := encodeID(taskID)
	if delay <= 0 {
		if err := q.client.LPush(ctx, q.ready, payload).Err(); err != nil {
			return fmt.Errorf("queue: push %d: %w", taskID, err)
		}
		return nil
	}
	due := q.now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: payload}).Err(); err != nil {
		return fmt.Errorf("queue: schedule %d: %w", taskID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	if _, err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	var (
		raw string
		err error
	)
	if q.poll > 0 {
		raw, err = q.client.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", q.poll).Result()
	} else {
		raw, err = q.client.LMove(ctx, q.ready, q.processing, "RIGHT", "LEFT").Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: receive: %w", err)
	}

	id, err := decodeID(raw)
	if err != nil {
		q.logger.Error().Str("payload", raw).Msg("queue: dropping malformed payload")
		_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
		return nil, ErrEmpty
	}
	return &Delivery{TaskID: id, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("queue: ack %d: %w", d.TaskID, err)
	}
	return nil
}

// Recover returns every delivery left in this consumer's in-flight list to
// the ready list. Call it once at startup, before consuming.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.ready, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("queue: recover: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) (int, error) {
	n, err := q.promote.Run(ctx, q.client, []string{q.delayed, q.ready}, q.now().UnixMilli(), q.batch).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("queue: promote delayed: %w", err)
	}
	return n, nil
}

var _ Queue = (*RedisQueue)(nil)
