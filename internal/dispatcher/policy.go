package dispatcher

import (
	"time"

	"imagebot/internal/moderation"
)

// RetryPolicy bounds how often a task is re-attempted after transient failures.
type RetryPolicy struct {
	// Ceiling is the retry count at which a task fails for good.
	Ceiling int
	// Backoff[i] is the delay before retry i+1. The last entry repeats.
	Backoff []time.Duration
}

// DefaultRetryPolicy allows three attempts, waiting 10s then 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Ceiling: 3,
		Backoff: []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

// Decision is the pure result of applying the policy to one failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide is evaluated with the retry count after the failure was counted.
// Moderation failures never retry.
func (p RetryPolicy) Decide(retryCount int, class moderation.Class) Decision {
	if class == moderation.Moderation {
		return Decision{}
	}
	if retryCount >= p.ceiling() {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(retryCount)}
}

// Delay returns the wait before retry number retryCount (1-based).
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

func (p RetryPolicy) ceiling() int {
	if p.Ceiling <= 0 {
		return 1
	}
	return p.Ceiling
}
