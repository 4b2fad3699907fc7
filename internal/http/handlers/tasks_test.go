package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"imagebot/internal/adapter/memory"
	"imagebot/internal/domain"
	"imagebot/internal/intake"
	"imagebot/internal/middleware"
	"imagebot/internal/queue"
)

type testEnv struct {
	app    *App
	tasks  *memory.TaskStore
	ledger *memory.Ledger
	router chi.Router
}

func newTestEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()
	tasks := memory.NewTaskStore()
	ledger := memory.NewLedger()
	ledger.Open(1, balance)
	svc := intake.NewService(tasks, ledger, queue.NewMemoryQueue(0), nil, nil)
	app := &App{Intake: svc, Tasks: tasks, Ledger: ledger}

	r := chi.NewRouter()
	r.Post("/v1/tasks", app.TasksCreate)
	r.Post("/v1/tasks/quote", app.TasksQuote)
	r.Get("/v1/tasks/{id}", app.TasksGet)
	r.Get("/v1/accounts/{id}/tasks", app.AccountTasks)
	r.Get("/v1/accounts/{id}/balance", app.AccountBalance)
	r.Get("/v1/healthz", app.Health)
	return &testEnv{app: app, tasks: tasks, ledger: ledger, router: r}
}

func (e *testEnv) do(method, path, account, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if account != "" {
		req.Header.Set(middleware.AccountHeader, account)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestTasksCreate_ChargesAndReturnsPending(t *testing.T) {
	env := newTestEnv(t, 10)

	rr := env.do(http.MethodPost, "/v1/tasks", "1", `{"prompt":"a cat in a hat","quality":"Medium"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	var got taskResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "pending" || got.TokensCharged != 5 || got.Provider != "standard" || got.AccountID != 1 {
		t.Fatalf("unexpected task %+v", got)
	}
	if balance, _ := env.ledger.Balance(context.Background(), 1); balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
}

func TestTasksCreate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		account string
		body    string
		want    int
		kind    string
	}{
		{"missing account", "", `{"prompt":"x"}`, http.StatusUnauthorized, "unauthorized"},
		{"bad json", "1", `{`, http.StatusBadRequest, "bad_request"},
		{"empty prompt", "1", `{"prompt":" "}`, http.StatusBadRequest, "invalid_task"},
		{"insufficient funds", "1", `{"prompt":"x","quality":"high"}`, http.StatusPaymentRequired, "insufficient_funds"},
		{"unknown account", "9", `{"prompt":"x"}`, http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, 4)
			rr := env.do(http.MethodPost, "/v1/tasks", tc.account, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.want, rr.Body)
			}
			var body map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.kind {
				t.Fatalf("error = %v, want %s", body["error"], tc.kind)
			}
		})
	}
}

type failingSubmitter struct{}

func (failingSubmitter) Quote(intake.SubmitRequest) (intake.Quote, error) {
	return intake.Quote{}, errors.New("boom")
}

func (failingSubmitter) Submit(context.Context, intake.SubmitRequest) (*domain.Task, error) {
	return nil, errors.New("connection reset")
}

func TestTasksCreate_InternalErrorIsOpaque(t *testing.T) {
	env := newTestEnv(t, 10)
	env.app.Intake = failingSubmitter{}

	rr := env.do(http.MethodPost, "/v1/tasks", "1", `{"prompt":"x"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection reset") {
		t.Fatalf("internal error leaked: %s", rr.Body)
	}
}

func TestTasksQuote_DoesNotCharge(t *testing.T) {
	env := newTestEnv(t, 10)

	rr := env.do(http.MethodPost, "/v1/tasks/quote", "1", `{"prompt":"x","model":"seedream-4-5-251128","source_refs":["a","b","c","d"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	var q quoteResponse
	if err := json.NewDecoder(rr.Body).Decode(&q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.Provider != "premium" || q.Kind != "edit" || q.Quality != "2k" || q.Tokens != 6 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if balance, _ := env.ledger.Balance(context.Background(), 1); balance != 10 {
		t.Fatalf("quote charged the account: balance %d", balance)
	}
}

func TestTasksGet(t *testing.T) {
	env := newTestEnv(t, 10)
	created := env.do(http.MethodPost, "/v1/tasks", "1", `{"prompt":"x"}`)
	if created.Code != http.StatusAccepted {
		t.Fatalf("create status = %d", created.Code)
	}

	if rr := env.do(http.MethodGet, "/v1/tasks/1", "1", ""); rr.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/v1/tasks/1", "2", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign account status = %d, want 404", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/v1/tasks/99", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing task status = %d, want 404", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/v1/tasks/abc", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rr.Code)
	}
}

func TestTasksGet_HidesProviderMessage(t *testing.T) {
	env := newTestEnv(t, 20)
	for i := 0; i < 3; i++ {
		if rr := env.do(http.MethodPost, "/v1/tasks", "1", `{"prompt":"x","quality":"low"}`); rr.Code != http.StatusAccepted {
			t.Fatalf("create %d status = %d", i, rr.Code)
		}
	}
	ctx := context.Background()
	finish := func(id int64, to domain.TaskStatus, msg string) {
		t.Helper()
		if _, err := env.tasks.Transition(ctx, id, domain.TaskStatusPending, domain.TaskStatusProcessing, domain.TaskUpdate{}); err != nil {
			t.Fatalf("claim %d: %v", id, err)
		}
		if _, err := env.tasks.Transition(ctx, id, domain.TaskStatusProcessing, to, domain.TaskUpdate{ErrorMessage: &msg}); err != nil {
			t.Fatalf("finish %d: %v", id, err)
		}
	}
	finish(1, domain.TaskStatusFailed, "openai: status 502: upstream connect error at 10.0.3.7")
	finish(2, domain.TaskStatusFailed, "Your request was rejected as a result of our safety system.")
	finish(3, domain.TaskStatusDone, "rate limit exceeded")

	tests := []struct {
		id     string
		reason string
		secret string
	}{
		{"1", "generic", "10.0.3.7"},
		{"2", "moderation", "safety system"},
		{"3", "", "rate limit"},
	}
	for _, tc := range tests {
		rr := env.do(http.MethodGet, "/v1/tasks/"+tc.id, "1", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("task %s status = %d", tc.id, rr.Code)
		}
		body := rr.Body.String()
		if strings.Contains(body, tc.secret) {
			t.Fatalf("task %s leaks provider text: %s", tc.id, body)
		}
		var got taskResponse
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.FailureReason != tc.reason {
			t.Fatalf("task %s failure_reason = %q, want %q", tc.id, got.FailureReason, tc.reason)
		}
	}

	rr := env.do(http.MethodGet, "/v1/accounts/1/tasks", "", "")
	if strings.Contains(rr.Body.String(), "10.0.3.7") || strings.Contains(rr.Body.String(), "safety system") {
		t.Fatalf("list leaks provider text: %s", rr.Body.String())
	}
}

func TestAccountTasksAndBalance(t *testing.T) {
	env := newTestEnv(t, 20)
	for i := 0; i < 3; i++ {
		if rr := env.do(http.MethodPost, "/v1/tasks", "1", `{"prompt":"x","quality":"low"}`); rr.Code != http.StatusAccepted {
			t.Fatalf("create %d status = %d", i, rr.Code)
		}
	}

	rr := env.do(http.MethodGet, "/v1/accounts/1/tasks?limit=2", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list struct {
		Items []taskResponse `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].ID != 3 {
		t.Fatalf("unexpected list %+v", list.Items)
	}
	if rr := env.do(http.MethodGet, "/v1/accounts/1/tasks?limit=-1", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/v1/accounts/1/balance", "", "")
	var bal map[string]int64
	if err := json.NewDecoder(rr.Body).Decode(&bal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bal["balance"] != 14 {
		t.Fatalf("balance = %d, want 14", bal["balance"])
	}
	if rr := env.do(http.MethodGet, "/v1/accounts/7/balance", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown account status = %d", rr.Code)
	}
}

type pinger func(context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	env.app.Checks = map[string]Pinger{
		"postgres": pinger(func(context.Context) error { return nil }),
	}
	if rr := env.do(http.MethodGet, "/v1/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rr.Code)
	}

	env.app.Checks["redis"] = pinger(func(context.Context) error { return errors.New("dial tcp: refused") })
	rr := env.do(http.MethodGet, "/v1/healthz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rr.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body["redis"] != "down" || body["postgres"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}
