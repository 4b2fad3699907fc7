package dispatcher

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"imagebot/internal/moderation"
)

func TestDefaultPolicySchedule(t *testing.T) {
	p := DefaultRetryPolicy()
	cases := []struct {
		retry int
		want  Decision
	}{
		{1, Decision{Retry: true, Delay: 10 * time.Second}},
		{2, Decision{Retry: true, Delay: 30 * time.Second}},
		{3, Decision{}},
		{4, Decision{}},
	}
	for _, tc := range cases {
		if got := p.Decide(tc.retry, moderation.Retryable); got != tc.want {
			t.Errorf("Decide(%d) = %+v, want %+v", tc.retry, got, tc.want)
		}
	}
	if got := p.Delay(7); got != time.Minute {
		t.Errorf("Delay past the schedule = %v, want last entry", got)
	}
}

func TestPolicyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ceiling := rapid.IntRange(1, 6).Draw(t, "ceiling")
		n := rapid.IntRange(1, 5).Draw(t, "backoffLen")
		backoff := make([]time.Duration, n)
		for i := range backoff {
			backoff[i] = time.Duration(rapid.IntRange(0, 120).Draw(t, "delay")) * time.Second
		}
		p := RetryPolicy{Ceiling: ceiling, Backoff: backoff}
		retry := rapid.IntRange(0, 10).Draw(t, "retryCount")

		if d := p.Decide(retry, moderation.Moderation); d.Retry {
			t.Fatalf("moderation retried: %+v", d)
		}
		d := p.Decide(retry, moderation.Retryable)
		if d.Retry != (retry < ceiling) {
			t.Fatalf("retry=%d ceiling=%d decided %+v", retry, ceiling, d)
		}
		if d.Retry {
			found := false
			for _, b := range backoff {
				if b == d.Delay {
					found = true
				}
			}
			if !found {
				t.Fatalf("delay %v not in schedule %v", d.Delay, backoff)
			}
		}
	})
}

func TestOutcomeKindString(t *testing.T) {
	for kind, want := range map[OutcomeKind]string{
		OutcomeDone:      "done",
		OutcomeRequeue:   "requeue",
		OutcomeFailed:    "failed",
		OutcomeDiscarded: "discarded",
		OutcomeKind(42):  "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
