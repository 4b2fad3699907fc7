package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"imagebot/internal/domain"
	"imagebot/internal/intake"
	"imagebot/internal/middleware"
	"imagebot/internal/moderation"
	"imagebot/internal/notify"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type taskRequest struct {
	Kind       string   `json:"kind"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
	Quality    string   `json:"quality"`
	Size       string   `json:"size"`
	Prompt     string   `json:"prompt"`
	SourceRefs []string `json:"source_refs"`
}

type taskResponse struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	Kind          string    `json:"kind"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Quality       string    `json:"quality"`
	Size          string    `json:"size"`
	Prompt        string    `json:"prompt"`
	SourceCount   int       `json:"source_count"`
	TokensCharged int64     `json:"tokens_charged"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	ResultURL     string    `json:"result_url,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type quoteResponse struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Quality  string `json:"quality"`
	Size     string `json:"size"`
	Kind     string `json:"kind"`
	Tokens   int64  `json:"tokens"`
}

func toTaskResponse(t *domain.Task) taskResponse {
	return taskResponse{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Kind:          string(t.Kind),
		Provider:      string(t.Provider),
		Model:         t.Model,
		Quality:       string(t.Quality),
		Size:          string(t.Size),
		Prompt:        t.Prompt,
		SourceCount:   len(t.SourceRefs),
		TokensCharged: t.TokensCharged,
		Status:        string(t.Status),
		RetryCount:    t.RetryCount,
		ResultURL:     t.ResultURL,
		FailureReason: failureReason(t),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// failureReason exposes only the user-facing reason code of a failed task.
// The provider message stays in the store.
func failureReason(t *domain.Task) string {
	if t.Status != domain.TaskStatusFailed {
		return ""
	}
	if moderation.Classify(t.ErrorMessage) == moderation.Moderation {
		return notify.ReasonModeration.String()
	}
	return notify.ReasonGeneric.String()
}

// currentAccountID reads the caller's account from the X-Account-ID header.
func (a *App) currentAccountID(r *http.Request) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(middleware.AccountHeader)), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func (a *App) decodeTask(w http.ResponseWriter, r *http.Request) (intake.SubmitRequest, bool) {
	accountID := a.currentAccountID(r)
	if accountID == 0 {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing account")
		return intake.SubmitRequest{}, false
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return intake.SubmitRequest{}, false
	}
	return intake.SubmitRequest{
		AccountID:  accountID,
		Kind:       domain.TaskKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Provider:   domain.ProviderID(strings.ToLower(strings.TrimSpace(req.Provider))),
		Model:      req.Model,
		Quality:    domain.Quality(strings.ToLower(strings.TrimSpace(req.Quality))),
		Size:       domain.Size(strings.TrimSpace(req.Size)),
		Prompt:     req.Prompt,
		SourceRefs: req.SourceRefs,
	}, true
}

func (a *App) TasksQuote(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTask(w, r)
	if !ok {
		return
	}
	quote, err := a.Intake.Quote(req)
	if err != nil {
		a.submitError(w, r, err)
		return
	}
	q := quote.Request
	a.json(w, http.StatusOK, quoteResponse{
		Provider: string(q.Provider),
		Model:    q.Model,
		Quality:  string(q.Quality),
		Size:     string(q.Size),
		Kind:     string(q.Kind),
		Tokens:   quote.Tokens,
	})
}

func (a *App) TasksCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTask(w, r)
	if !ok {
		return
	}
	task, err := a.Intake.Submit(r.Context(), req)
	if err != nil {
		a.submitError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toTaskResponse(task))
}

func (a *App) submitError(w http.ResponseWriter, r *http.Request, err error) {
	var funds *domain.InsufficientFundsError
	switch {
	case errors.Is(err, domain.ErrInvalidTask):
		a.error(w, r, http.StatusBadRequest, "invalid_task", err.Error())
	case errors.As(err, &funds):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient_funds",
			"message":   err.Error(),
			"required":  funds.Required,
			"available": funds.Available,
		})
	case errors.Is(err, domain.ErrAccountNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", "account not found")
	default:
		a.log(r).Error().Err(err).Msg("submit task failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "failed to submit task")
	}
}

func (a *App) TasksGet(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}
	task, err := a.Tasks.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, r, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if err != nil {
		a.log(r).Error().Err(err).Int64("task_id", id).Msg("load task failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "failed to load task")
		return
	}
	if caller := a.currentAccountID(r); caller != 0 && caller != task.AccountID {
		a.error(w, r, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(task))
}

func (a *App) AccountTasks(w http.ResponseWriter, r *http.Request) {
	accountID, ok := int64Param(r, "id")
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid account id")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, r, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	tasks, err := a.Tasks.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		a.log(r).Error().Err(err).Int64("account_id", accountID).Msg("list tasks failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "failed to list tasks")
		return
	}
	items := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		items = append(items, toTaskResponse(&tasks[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) AccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := int64Param(r, "id")
	if !ok {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid account id")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		a.error(w, r, http.StatusNotFound, "not_found", "account not found")
		return
	}
	if err != nil {
		a.log(r).Error().Err(err).Int64("account_id", accountID).Msg("load balance failed")
		a.error(w, r, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"account_id": accountID, "balance": balance})
}
