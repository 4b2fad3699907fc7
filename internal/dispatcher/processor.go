// Package dispatcher drives tasks from pending to a terminal state.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/moderation"
	"imagebot/internal/notify"
	"imagebot/internal/pricing"
	"imagebot/internal/providers/image"
	"imagebot/internal/storage"
)

const (
	reasonInternal        = "internal error"
	reasonProviderTimeout = "provider timeout"
	reasonDelivery        = "delivery failed"

	finalizeAttempts = 3
)

// ProviderResolver returns the adapter serving a provider id.
type ProviderResolver interface {
	Resolve(id domain.ProviderID) (image.Adapter, error)
}

// ResultStore keeps inline payloads after delivery.
type ResultStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options wires a Processor.
type Options struct {
	Tasks     domain.TaskStore
	Ledger    domain.Ledger
	Providers ProviderResolver
	Sink      notify.Sink
	Alerts    notify.Alerts
	// Results is optional. Without it inline payloads are only delivered.
	Results ResultStore
	Policy  RetryPolicy

	ProviderTimeout time.Duration
	DeliveryTimeout time.Duration

	Logger  *infra.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
}

// Processor runs one task attempt per call.
type Processor struct {
	tasks           domain.TaskStore
	ledger          domain.Ledger
	providers       ProviderResolver
	sink            notify.Sink
	alerts          notify.Alerts
	results         ResultStore
	policy          RetryPolicy
	providerTimeout time.Duration
	deliveryTimeout time.Duration
	finalizeBackoff time.Duration
	logger          *infra.Logger
	tracer          trace.Tracer
	metrics         *Metrics
}

// NewProcessor validates opts and fills defaults.
func NewProcessor(opts Options) (*Processor, error) {
	switch {
	case opts.Tasks == nil:
		return nil, errors.New("dispatcher: task store is required")
	case opts.Ledger == nil:
		return nil, errors.New("dispatcher: ledger is required")
	case opts.Providers == nil:
		return nil, errors.New("dispatcher: provider registry is required")
	case opts.Sink == nil:
		return nil, errors.New("dispatcher: notification sink is required")
	}
	p := &Processor{
		tasks:           opts.Tasks,
		ledger:          opts.Ledger,
		providers:       opts.Providers,
		sink:            opts.Sink,
		alerts:          opts.Alerts,
		results:         opts.Results,
		policy:          opts.Policy,
		providerTimeout: opts.ProviderTimeout,
		deliveryTimeout: opts.DeliveryTimeout,
		finalizeBackoff: 200 * time.Millisecond,
		logger:          opts.Logger,
		tracer:          opts.Tracer,
		metrics:         opts.Metrics,
	}
	if p.alerts == nil {
		p.alerts = notify.NopAlerts{}
	}
	if p.policy.Ceiling == 0 && len(p.policy.Backoff) == 0 {
		p.policy = DefaultRetryPolicy()
	}
	if p.providerTimeout <= 0 {
		p.providerTimeout = 5 * time.Minute
	}
	if p.deliveryTimeout <= 0 {
		p.deliveryTimeout = time.Minute
	}
	if p.logger == nil {
		l := zerolog.Nop()
		p.logger = &l
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("")
	}
	return p, nil
}

// Process claims taskID and runs a single attempt. The returned error is
// reserved for store failures; every provider or delivery problem is folded
// into the Outcome.
func (p *Processor) Process(ctx context.Context, taskID int64) (out Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, "dispatcher.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.Int64("task.id", taskID)),
	)
	defer func() {
		span.SetAttributes(attribute.String("task.outcome", out.Kind.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	task, err := p.tasks.GetByID(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn().Int64("task_id", taskID).Msg("task not found, dropping job")
		return Discarded("not found"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load task %d: %w", taskID, err)
	}
	if task.Status != domain.TaskStatusPending {
		p.logger.Debug().Int64("task_id", taskID).Str("status", string(task.Status)).Msg("task not pending, dropping job")
		return Discarded("status " + string(task.Status)), nil
	}

	claimed, err := p.tasks.Transition(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusProcessing, domain.TaskUpdate{})
	if errors.Is(err, domain.ErrStaleTransition) || errors.Is(err, domain.ErrNotFound) {
		p.logger.Debug().Int64("task_id", taskID).Msg("task claimed elsewhere")
		return Discarded("claimed elsewhere"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("claim task %d: %w", taskID, err)
	}
	span.SetAttributes(
		attribute.String("task.provider", string(claimed.Provider)),
		attribute.String("task.kind", string(claimed.Kind)),
		attribute.Int("task.attempt", claimed.RetryCount+1),
	)
	return p.attempt(ctx, claimed)
}

func (p *Processor) attempt(ctx context.Context, task *domain.Task) (Outcome, error) {
	log := p.logger.With().
		Int64("task_id", task.ID).
		Int64("account_id", task.AccountID).
		Str("provider", string(task.Provider)).
		Int("attempt", task.RetryCount+1).
		Logger()

	res, class := p.generate(ctx, task)
	if !res.OK() {
		log.Warn().Str("class", class.String()).Str("error", res.Message).Msg("generation attempt failed")
		return p.fail(ctx, task, res.Message, class)
	}

	update, err := p.deliver(ctx, task, res.Payload, &log)
	if err != nil {
		log.Warn().Err(err).Msg("result delivery failed")
		return p.fail(ctx, task, reasonDelivery+": "+err.Error(), moderation.Retryable)
	}

	// Delivery already happened, so the final write must not be abandoned
	// because the worker is shutting down.
	final := context.WithoutCancel(ctx)
	done, err := p.finalize(final, task.ID, domain.TaskStatusDone, update)
	if err != nil {
		log.Error().Err(err).Str("artifact_id", *update.DeliveredArtifactID).Msg("delivered task could not be marked done")
		return Outcome{}, fmt.Errorf("complete task %d: %w", task.ID, err)
	}
	p.metrics.completed(string(done.Provider), done.ProviderUnitsUsed)
	log.Info().
		Str("artifact_id", done.DeliveredArtifactID).
		Int64("provider_units", done.ProviderUnitsUsed).
		Msg("task done")
	return Done(), nil
}

// generate calls the adapter under the provider timeout. Panics and timeouts
// are retryable regardless of their text.
func (p *Processor) generate(ctx context.Context, task *domain.Task) (res image.Result, class moderation.Class) {
	adapter, err := p.providers.Resolve(task.Provider)
	if err != nil {
		return image.Failed(err.Error()), moderation.Retryable
	}

	callCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()
	callCtx, span := p.tracer.Start(callCtx, "provider."+string(task.Kind),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider.model", task.Model)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int64("task_id", task.ID).Interface("panic", r).Msg("provider adapter panicked")
			span.SetStatus(codes.Error, "panic")
			res, class = image.Failed(fmt.Sprintf("%s: %v", reasonInternal, r)), moderation.Retryable
		}
	}()

	req := image.RequestFromTask(task)
	if task.Kind == domain.TaskKindEdit {
		res = adapter.Edit(callCtx, req)
	} else {
		res = adapter.Generate(callCtx, req.GenerateRequest)
	}
	if res.OK() {
		return res, moderation.Retryable
	}
	span.SetStatus(codes.Error, res.Message)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return image.Failed(reasonProviderTimeout + ": " + res.Message), moderation.Retryable
	}
	return res, moderation.Classify(res.Message)
}

// deliver keeps the payload and hands it to the sink. The returned update
// is what the done transition writes.
func (p *Processor) deliver(ctx context.Context, task *domain.Task, payload image.Payload, log *zerolog.Logger) (update domain.TaskUpdate, err error) {
	var resultURL, resultKey string
	switch pl := payload.(type) {
	case image.RemoteRef:
		resultURL = pl.URL
	case image.InlinePayload:
		if p.results != nil {
			key, werr := p.results.Write(ctx, storage.ResultKey(task.ID, task.RetryCount, pl.MIME), pl.Data)
			if werr != nil {
				log.Warn().Err(werr).Msg("could not keep inline result")
			} else {
				resultKey = key
			}
		}
	}

	deliverCtx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: sink panicked: %v", reasonInternal, r)
		}
	}()
	artifactID, err := p.sink.DeliverResult(deliverCtx, task, payload)
	if err != nil {
		return domain.TaskUpdate{}, err
	}
	if artifactID == "" {
		return domain.TaskUpdate{}, errors.New("sink returned no artifact id")
	}

	// error_message is left untouched so the last failure reason survives
	// a successful retry.
	units := pricing.ProviderUnits(task.Quality, task.Size)
	return domain.TaskUpdate{
		ResultURL:           &resultURL,
		ResultKey:           &resultKey,
		DeliveredArtifactID: &artifactID,
		ProviderUnitsUsed:   &units,
	}, nil
}

// finalize moves a processing task to its next status. A store error other
// than a lost race is retried, because a task left in processing is never
// claimed again.
func (p *Processor) finalize(ctx context.Context, id int64, to domain.TaskStatus, update domain.TaskUpdate) (*domain.Task, error) {
	backoff := p.finalizeBackoff
	var err error
	for i := 0; i < finalizeAttempts; i++ {
		if i > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		var task *domain.Task
		task, err = p.tasks.Transition(ctx, id, domain.TaskStatusProcessing, to, update)
		if err == nil || errors.Is(err, domain.ErrStaleTransition) || errors.Is(err, domain.ErrNotFound) {
			return task, err
		}
		p.logger.Warn().Err(err).Int64("task_id", id).Str("to", string(to)).Int("write_attempt", i+1).Msg("task status write failed")
	}
	return nil, err
}

// fail records a failed attempt and decides between retry and terminal
// failure. Only the caller whose processing->failed transition succeeds
// issues the refund.
func (p *Processor) fail(ctx context.Context, task *domain.Task, reason string, class moderation.Class) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	p.metrics.attemptFailed(string(task.Provider), class.String())

	retries := task.RetryCount
	if class == moderation.Retryable {
		retries++
	}
	decision := p.policy.Decide(retries, class)
	update := domain.TaskUpdate{RetryCount: &retries, ErrorMessage: &reason}

	if decision.Retry {
		if _, err := p.finalize(ctx, task.ID, domain.TaskStatusPending, update); err != nil {
			p.logger.Error().Err(err).Int64("task_id", task.ID).Int("retry_count", retries).Msg("task stuck in processing, reschedule not recorded")
			return Outcome{}, fmt.Errorf("reschedule task %d: %w", task.ID, err)
		}
		p.logger.Info().
			Int64("task_id", task.ID).
			Int("retry_count", retries).
			Dur("delay", decision.Delay).
			Msg("task rescheduled")
		return Requeue(decision.Delay), nil
	}

	failed, err := p.finalize(ctx, task.ID, domain.TaskStatusFailed, update)
	if errors.Is(err, domain.ErrStaleTransition) {
		return Discarded("finalized elsewhere"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("fail task %d: %w", task.ID, err)
	}

	balance, err := p.ledger.Refund(ctx, failed.AccountID, failed.TokensCharged, domain.ForTask("refund: generation failed", failed.ID))
	if err != nil {
		ev := p.logger.Error().Err(err).Int64("task_id", failed.ID).Int64("account_id", failed.AccountID).Int64("tokens", failed.TokensCharged)
		if errors.Is(err, domain.ErrAccountNotFound) {
			ev.Msg("refund target account does not exist")
		} else {
			ev.Msg("refund failed")
		}
		return Failed(reason), fmt.Errorf("refund task %d: %w", failed.ID, err)
	}
	p.metrics.refunded(failed.TokensCharged)

	notice := notify.ReasonGeneric
	if class == moderation.Moderation {
		notice = notify.ReasonModeration
		p.alerts.ModerationBlocked(ctx, failed, reason)
	} else {
		p.alerts.GenerationFailed(ctx, failed, reason)
	}
	noticeCtx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	defer cancel()
	if err := p.sink.DeliverFailure(noticeCtx, failed, notice); err != nil {
		p.logger.Warn().Err(err).Int64("task_id", failed.ID).Msg("failure notice not delivered")
	}

	p.logger.Info().
		Int64("task_id", failed.ID).
		Str("class", class.String()).
		Int("retry_count", failed.RetryCount).
		Int64("refunded", failed.TokensCharged).
		Int64("balance", balance).
		Msg("task failed")
	return Failed(reason), nil
}
