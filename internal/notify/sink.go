// Package notify delivers task outcomes to the account owner.
package notify

import (
	"context"
	"errors"

	"imagebot/internal/domain"
	"imagebot/internal/providers/image"
)

// FailureReason selects which of the two failure messages a user sees.
type FailureReason int

const (
	ReasonGeneric FailureReason = iota
	ReasonModeration
)

func (r FailureReason) String() string {
	if r == ReasonModeration {
		return "moderation"
	}
	return "generic"
}

// ErrDeliveryFailed wraps every error returned by a Sink.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Sink hands task outcomes to the messenger. DeliverResult returns the
// messenger's durable id for the delivered artifact.
type Sink interface {
	DeliverResult(ctx context.Context, task *domain.Task, payload image.Payload) (string, error)
	DeliverFailure(ctx context.Context, task *domain.Task, reason FailureReason) error
}

// Alerts receives operator notifications. Implementations are best effort.
type Alerts interface {
	ModerationBlocked(ctx context.Context, task *domain.Task, reason string)
	GenerationFailed(ctx context.Context, task *domain.Task, reason string)
}

// NopAlerts discards every alert.
type NopAlerts struct{}

func (NopAlerts) ModerationBlocked(context.Context, *domain.Task, string) {}
func (NopAlerts) GenerationFailed(context.Context, *domain.Task, string)  {}
