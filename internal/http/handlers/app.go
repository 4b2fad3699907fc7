package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/intake"
	"imagebot/internal/middleware"
)

// Submitter is the intake entry point used by POST /v1/tasks.
type Submitter interface {
	Quote(req intake.SubmitRequest) (intake.Quote, error)
	Submit(ctx context.Context, req intake.SubmitRequest) (*domain.Task, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Intake Submitter
	Tasks  domain.TaskStore
	Ledger domain.Ledger
	Checks map[string]Pinger
	Logger *infra.Logger
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes the error envelope. The message follows the locale the
// Locale middleware negotiated.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	a.json(w, code, errorBody{Error: kind, Message: localize(middleware.LocaleFromContext(r.Context()), msg)})
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if a.Logger != nil {
		return a.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v, err == nil && v > 0
}
