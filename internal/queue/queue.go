// Package queue carries task ids from intake to the dispatcher with
// at-least-once delivery and optional delayed re-delivery.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrEmpty is returned by Dequeue when nothing became ready within the poll window.
var ErrEmpty = errors.New("queue: empty")

// Delivery is one received job. It must be acknowledged once handled;
// unacknowledged deliveries are returned to the ready queue by Recover.
type Delivery struct {
	TaskID int64
	raw    string
}

// Queue is the broker contract. The payload is only the task id; all task
// data is read from the task store at processing time.
type Queue interface {
	Enqueue(ctx context.Context, taskID int64, delay time.Duration) error
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Recover(ctx context.Context) (int, error)
}

func encodeID(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

func decodeID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("queue: malformed payload %q", raw)
	}
	return id, nil
}
