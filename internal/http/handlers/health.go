package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range a.Checks {
		if err := check.Ping(ctx); err != nil {
			a.log(r).Warn().Err(err).Str("check", name).Msg("health check failed")
			status[name] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	a.json(w, code, status)
}
