package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"imagebot/internal/adapter/memory"
	"imagebot/internal/domain"
	"imagebot/internal/queue"
)

type failingQueue struct{ err error }

func (q failingQueue) Enqueue(context.Context, int64, time.Duration) error { return q.err }

type failingTasks struct {
	*memory.TaskStore
	err error
}

func (f failingTasks) Create(context.Context, *domain.Task) (*domain.Task, error) { return nil, f.err }

func newService(t *testing.T, balance int64) (*Service, *memory.TaskStore, *memory.Ledger, *queue.MemoryQueue) {
	t.Helper()
	tasks := memory.NewTaskStore()
	ledger := memory.NewLedger()
	ledger.Open(1, balance)
	q := queue.NewMemoryQueue(0)
	return NewService(tasks, ledger, q, nil, nil), tasks, ledger, q
}

func TestSubmitChargesAndEnqueues(t *testing.T) {
	svc, tasks, ledger, q := newService(t, 10)
	ctx := context.Background()

	task, err := svc.Submit(ctx, SubmitRequest{AccountID: 1, Prompt: "a lighthouse", Quality: domain.QualityMedium})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.Status != domain.TaskStatusPending || task.TokensCharged != 5 || task.Model != "gpt-image-1" {
		t.Fatalf("unexpected task %+v", task)
	}
	if balance, _ := ledger.Balance(ctx, 1); balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil || stored.Size != domain.SizeSquare {
		t.Fatalf("stored task = %+v, %v", stored, err)
	}
	d, err := q.Dequeue(ctx)
	if err != nil || d.TaskID != task.ID {
		t.Fatalf("queued delivery = %+v, %v", d, err)
	}
}

func TestSubmitInsufficientFundsCreatesNothing(t *testing.T) {
	svc, tasks, ledger, q := newService(t, 4)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{AccountID: 1, Prompt: "x", Quality: domain.QualityHigh})
	if !domain.IsInsufficientFunds(err) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if counts, _ := tasks.CountByStatus(ctx); len(counts) != 0 {
		t.Fatalf("task created despite rejection: %v", counts)
	}
	if ready, delayed, _ := q.Len(); ready+delayed != 0 {
		t.Fatal("job enqueued despite rejection")
	}
	if balance, _ := ledger.Balance(ctx, 1); balance != 4 {
		t.Fatalf("balance = %d, want 4", balance)
	}
}

func TestSubmitEditPricesSourceSurcharge(t *testing.T) {
	svc, _, _, _ := newService(t, 100)
	refs := []string{"a", "b", "c", "d", "e"}
	task, err := svc.Submit(context.Background(), SubmitRequest{
		AccountID: 1, Prompt: "merge", SourceRefs: refs, Quality: domain.QualityLow, Size: domain.SizePortrait,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.Kind != domain.TaskKindEdit || task.TokensCharged != 3 {
		t.Fatalf("kind=%s tokens=%d, want edit/3", task.Kind, task.TokensCharged)
	}
}

func TestSubmitRefundsWhenEnqueueFails(t *testing.T) {
	tasks := memory.NewTaskStore()
	ledger := memory.NewLedger()
	ledger.Open(1, 10)
	svc := NewService(tasks, ledger, failingQueue{err: errors.New("redis down")}, nil, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{AccountID: 1, Prompt: "x", Quality: domain.QualityMedium})
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Fatalf("expected enqueue error, got %v", err)
	}
	if balance, _ := ledger.Balance(ctx, 1); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
	counts, _ := tasks.CountByStatus(ctx)
	if counts[domain.TaskStatusFailed] != 1 {
		t.Fatalf("expected the task to be failed, got %v", counts)
	}
}

func TestSubmitRefundsWhenCreateFails(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Open(1, 10)
	svc := NewService(failingTasks{TaskStore: memory.NewTaskStore(), err: errors.New("db down")}, ledger, queue.NewMemoryQueue(0), nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, SubmitRequest{AccountID: 1, Prompt: "x"}); err == nil {
		t.Fatal("expected create error")
	}
	if balance, _ := ledger.Balance(ctx, 1); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
	entries := ledger.Entries(1)
	if len(entries) != 2 || entries[1].Type != domain.EntryRefund {
		t.Fatalf("journal = %+v", entries)
	}
}

func TestQuoteValidation(t *testing.T) {
	svc, _, _, _ := newService(t, 0)
	tooMany := make([]string, domain.MaxSourceRefs+1)
	for i := range tooMany {
		tooMany[i] = "ref"
	}
	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"empty prompt", SubmitRequest{AccountID: 1, Prompt: "  "}},
		{"long prompt", SubmitRequest{AccountID: 1, Prompt: strings.Repeat("x", MaxPromptRunes+1)}},
		{"no account", SubmitRequest{Prompt: "x"}},
		{"generate with sources", SubmitRequest{AccountID: 1, Prompt: "x", Kind: domain.TaskKindGenerate, SourceRefs: []string{"a"}}},
		{"edit without sources", SubmitRequest{AccountID: 1, Prompt: "x", Kind: domain.TaskKindEdit}},
		{"too many sources", SubmitRequest{AccountID: 1, Prompt: "x", SourceRefs: tooMany}},
		{"bad size", SubmitRequest{AccountID: 1, Prompt: "x", Size: "640x480"}},
		{"bad quality", SubmitRequest{AccountID: 1, Prompt: "x", Quality: "ultra"}},
		{"bad provider", SubmitRequest{AccountID: 1, Prompt: "x", Provider: "midjourney"}},
		{"standard model on premium", SubmitRequest{AccountID: 1, Prompt: "x", Provider: domain.ProviderPremium, Model: "gpt-image-1.5", Quality: domain.QualityHigh}},
		{"premium model on standard", SubmitRequest{AccountID: 1, Prompt: "x", Provider: domain.ProviderStandard, Model: "seedream-4-5-251128"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Quote(tc.req); !errors.Is(err, domain.ErrInvalidTask) {
				t.Fatalf("expected ErrInvalidTask, got %v", err)
			}
		})
	}
}

func TestQuoteResolvesProviderAndConvertsQuality(t *testing.T) {
	svc, _, _, _ := newService(t, 0)

	q, err := svc.Quote(SubmitRequest{AccountID: 1, Prompt: "x", Model: "seedream-4-5-251128", Quality: domain.QualityHigh})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Request.Provider != domain.ProviderPremium || q.Request.Quality != domain.Quality4K || q.Tokens != 5 {
		t.Fatalf("unexpected quote %+v", q)
	}

	q, err = svc.Quote(SubmitRequest{AccountID: 1, Prompt: "x", Provider: domain.ProviderPremium})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Request.Quality != domain.Quality2K || q.Request.Model != "seedream-4-5-251128" {
		t.Fatalf("unexpected defaults %+v", q.Request)
	}

	q, err = svc.Quote(SubmitRequest{AccountID: 1, Prompt: "x", Provider: domain.ProviderStandard, Model: "gpt-image-1.5"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Request.Model != "gpt-image-1.5" || q.Request.Quality != domain.QualityMedium {
		t.Fatalf("unexpected matching pair %+v", q.Request)
	}
}

func TestSubmitRejectsMismatchedModelWithoutCharge(t *testing.T) {
	svc, tasks, ledger, _ := newService(t, 10)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{AccountID: 1, Prompt: "x", Provider: domain.ProviderPremium, Model: "gpt-image-1.5"})
	if !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if balance, _ := ledger.Balance(ctx, 1); balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
	if counts, _ := tasks.CountByStatus(ctx); len(counts) != 0 {
		t.Fatalf("task created despite rejection: %v", counts)
	}
}
