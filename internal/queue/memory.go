package queue

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type delayedJob struct {
	due    time.Time
	taskID int64
}

// MemoryQueue is an in-process Queue with the same delivery semantics as
// RedisQueue. Used by tests and single-process runs.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []int64
	delayed  []delayedJob
	inflight map[string]int64
	seq      uint64
	notify   chan struct{}
	poll     time.Duration
	now      func() time.Time
}

// NewMemoryQueue builds a queue whose Dequeue waits up to poll for work.
func NewMemoryQueue(poll time.Duration) *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]int64),
		notify:   make(chan struct{}, 1),
		poll:     poll,
		now:      time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, taskID int64, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	if delay <= 0 {
		q.ready = append(q.ready, taskID)
	} else {
		q.delayed = append(q.delayed, delayedJob{due: q.now().Add(delay), taskID: taskID})
		sort.Slice(q.delayed, func(i, j int) bool { return q.delayed[i].due.Before(q.delayed[j].due) })
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	deadline := q.now().Add(q.poll)
	for {
		q.mu.Lock()
		q.promoteLocked()
		if len(q.ready) > 0 {
			id := q.ready[0]
			q.ready = q.ready[1:]
			q.seq++
			raw := strconv.FormatUint(q.seq, 10) + ":" + encodeID(id)
			q.inflight[raw] = id
			more := len(q.ready) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return &Delivery{TaskID: id, raw: raw}, nil
		}
		wait := deadline.Sub(q.now())
		if len(q.delayed) > 0 {
			if untilDue := q.delayed[0].due.Sub(q.now()); untilDue < wait {
				wait = untilDue
			}
		}
		q.mu.Unlock()

		if q.now().After(deadline) || q.poll <= 0 {
			return nil, ErrEmpty
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	q.mu.Lock()
	delete(q.inflight, d.raw)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.inflight)
	for raw, id := range q.inflight {
		q.ready = append(q.ready, id)
		delete(q.inflight, raw)
	}
	q.mu.Unlock()
	if n > 0 {
		q.signal()
	}
	return n, nil
}

// Len reports ready, delayed and in-flight counts.
func (q *MemoryQueue) Len() (ready, delayed, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), len(q.delayed), len(q.inflight)
}

func (q *MemoryQueue) promoteLocked() {
	now := q.now()
	i := 0
	for ; i < len(q.delayed) && !q.delayed[i].due.After(now); i++ {
		q.ready = append(q.ready, q.delayed[i].taskID)
	}
	q.delayed = q.delayed[i:]
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

var _ Queue = (*MemoryQueue)(nil)
