package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"imagebot/internal/http/handlers"
	"imagebot/internal/middleware"
)

// Options configures the router beyond the handlers themselves.
type Options struct {
	Logger          zerolog.Logger
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	Gatherer        prometheus.Gatherer
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.Locale(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.RateLimitPerMin > 0 {
					r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
				}
				r.Post("/", app.TasksCreate)
			})
			r.Post("/quote", app.TasksQuote)
			r.Get("/{id}", app.TasksGet)
		})
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/tasks", app.AccountTasks)
			r.Get("/balance", app.AccountBalance)
		})
	})

	return r
}
