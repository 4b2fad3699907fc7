package dispatcher

import "time"

// OutcomeKind tells the consumer loop what to do with a delivery.
type OutcomeKind int

const (
	OutcomeDone OutcomeKind = iota
	OutcomeRequeue
	OutcomeFailed
	OutcomeDiscarded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDone:
		return "done"
	case OutcomeRequeue:
		return "requeue"
	case OutcomeFailed:
		return "failed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one delivery.
type Outcome struct {
	Kind   OutcomeKind
	Delay  time.Duration
	Reason string
}

func Done() Outcome { return Outcome{Kind: OutcomeDone} }

// Requeue asks the loop to put the task back after at least delay.
func Requeue(delay time.Duration) Outcome { return Outcome{Kind: OutcomeRequeue, Delay: delay} }

func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

// Discarded marks a delivery that required no work.
func Discarded(reason string) Outcome { return Outcome{Kind: OutcomeDiscarded, Reason: reason} }
