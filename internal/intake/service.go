// Package intake validates, prices and enqueues new generation tasks.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/pricing"
)

// MaxPromptRunes bounds the prompt accepted from users.
const MaxPromptRunes = 3000

// Enqueuer is the part of the job queue intake needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID int64, delay time.Duration) error
}

// SubmitRequest is a user's request before pricing.
type SubmitRequest struct {
	AccountID  int64
	Kind       domain.TaskKind
	Provider   domain.ProviderID
	Model      string
	Quality    domain.Quality
	Size       domain.Size
	Prompt     string
	SourceRefs []string
}

// Quote is a validated request together with its frozen price.
type Quote struct {
	Request SubmitRequest
	Tokens  int64
}

// Service charges the account and hands the task to the queue.
type Service struct {
	tasks  domain.TaskStore
	ledger domain.Ledger
	queue  Enqueuer
	models map[domain.ProviderID]string
	logger *infra.Logger
}

// NewService wires intake. models maps providers to the model used when a
// request names none.
func NewService(tasks domain.TaskStore, ledger domain.Ledger, queue Enqueuer, models map[domain.ProviderID]string, logger *infra.Logger) *Service {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	defaults := map[domain.ProviderID]string{
		domain.ProviderStandard: "gpt-image-1",
		domain.ProviderPremium:  "seedream-4-5-251128",
	}
	for id, m := range models {
		if strings.TrimSpace(m) != "" {
			defaults[id] = m
		}
	}
	return &Service{tasks: tasks, ledger: ledger, queue: queue, models: defaults, logger: logger}
}

// Quote normalizes req and prices it without touching the balance.
func (s *Service) Quote(req SubmitRequest) (Quote, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Model = strings.TrimSpace(req.Model)

	if req.AccountID <= 0 {
		return Quote{}, fmt.Errorf("%w: account is required", domain.ErrInvalidTask)
	}
	if req.Prompt == "" {
		return Quote{}, fmt.Errorf("%w: prompt is required", domain.ErrInvalidTask)
	}
	if utf8.RuneCountInString(req.Prompt) > MaxPromptRunes {
		return Quote{}, fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidTask, MaxPromptRunes)
	}

	if req.Kind == "" {
		req.Kind = domain.TaskKindGenerate
		if len(req.SourceRefs) > 0 {
			req.Kind = domain.TaskKindEdit
		}
	}
	refs := make([]string, 0, len(req.SourceRefs))
	for _, ref := range req.SourceRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	req.SourceRefs = refs
	switch req.Kind {
	case domain.TaskKindGenerate:
		if len(refs) > 0 {
			return Quote{}, fmt.Errorf("%w: generate tasks take no source images", domain.ErrInvalidTask)
		}
	case domain.TaskKindEdit:
		if len(refs) == 0 || len(refs) > domain.MaxSourceRefs {
			return Quote{}, fmt.Errorf("%w: edit tasks take 1 to %d source images", domain.ErrInvalidTask, domain.MaxSourceRefs)
		}
	default:
		return Quote{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidTask, req.Kind)
	}

	if req.Provider == "" {
		req.Provider = domain.ProviderStandard
		if req.Model != "" {
			req.Provider = domain.ProviderForModel(req.Model)
		}
	}
	provider, err := domain.ParseProviderID(string(req.Provider))
	if err != nil {
		return Quote{}, err
	}
	req.Provider = provider
	if req.Model == "" {
		req.Model = s.models[provider]
	} else if owner := domain.ProviderForModel(req.Model); owner != provider {
		return Quote{}, fmt.Errorf("%w: model %q is served by provider %q, not %q", domain.ErrInvalidTask, req.Model, owner, provider)
	}

	switch {
	case req.Quality == "":
		req.Quality = pricing.DefaultQuality(provider)
	case !pricing.ValidQuality(provider, req.Quality):
		if !knownQuality(req.Quality) {
			return Quote{}, fmt.Errorf("%w: unknown quality %q", domain.ErrInvalidTask, req.Quality)
		}
		req.Quality = pricing.ConvertQuality(req.Quality, provider)
	}

	if req.Size == "" {
		req.Size = domain.SizeSquare
	}
	if !req.Size.Valid() {
		return Quote{}, fmt.Errorf("%w: unsupported size %q", domain.ErrInvalidTask, req.Size)
	}

	return Quote{Request: req, Tokens: pricing.Cost(provider, req.Quality, len(refs))}, nil
}

// Submit deducts the price, stores a pending task and enqueues it. A
// failure after the deduct is compensated with a refund, so the caller never
// pays for a task that will not run.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	quote, err := s.Quote(req)
	if err != nil {
		return nil, err
	}
	r := quote.Request
	log := s.logger.With().Int64("account_id", r.AccountID).Str("provider", string(r.Provider)).Logger()

	if _, err := s.ledger.Deduct(ctx, r.AccountID, quote.Tokens, domain.Memo{Description: "charge: " + string(r.Kind)}); err != nil {
		return nil, err
	}

	task, err := s.tasks.Create(ctx, &domain.Task{
		AccountID:     r.AccountID,
		Kind:          r.Kind,
		Provider:      r.Provider,
		Model:         r.Model,
		Quality:       r.Quality,
		Size:          r.Size,
		Prompt:        r.Prompt,
		SourceRefs:    r.SourceRefs,
		TokensCharged: quote.Tokens,
		Status:        domain.TaskStatusPending,
	})
	if err != nil {
		bg := context.WithoutCancel(ctx)
		if _, rerr := s.ledger.Refund(bg, r.AccountID, quote.Tokens, domain.Memo{Description: "refund: task not created"}); rerr != nil {
			log.Error().Err(rerr).Int64("tokens", quote.Tokens).Msg("compensating refund failed")
			return nil, errors.Join(fmt.Errorf("create task: %w", err), rerr)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}

	if err := s.queue.Enqueue(ctx, task.ID, 0); err != nil {
		s.abandon(context.WithoutCancel(ctx), task, err, &log)
		return nil, fmt.Errorf("enqueue task %d: %w", task.ID, err)
	}

	log.Info().
		Int64("task_id", task.ID).
		Str("kind", string(task.Kind)).
		Str("quality", string(task.Quality)).
		Int64("tokens", task.TokensCharged).
		Msg("task submitted")
	return task, nil
}

// abandon fails a task that never reached the queue and returns its tokens.
func (s *Service) abandon(ctx context.Context, task *domain.Task, cause error, log *zerolog.Logger) {
	reason := "enqueue failed: " + cause.Error()
	failed, err := s.tasks.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusFailed, domain.TaskUpdate{ErrorMessage: &reason})
	if err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("could not fail unqueued task")
		return
	}
	if _, err := s.ledger.Refund(ctx, failed.AccountID, failed.TokensCharged, domain.ForTask("refund: task not queued", failed.ID)); err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("refund for unqueued task failed")
	}
}

func knownQuality(q domain.Quality) bool {
	return pricing.ValidQuality(domain.ProviderStandard, q) || pricing.ValidQuality(domain.ProviderPremium, q)
}
