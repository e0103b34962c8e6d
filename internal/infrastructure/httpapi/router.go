package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/git-apexplanners/wsscapt/internal/infrastructure/config"
	obs "github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
	"github.com/git-apexplanners/wsscapt/internal/usecase"
)

type Deps struct {
	Cfg     config.Config
	Logger  *zerolog.Logger
	Metrics *obs.Metrics
	Svc     *usecase.SessionService
}

func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))

	r.Get("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "wsscapt",
			"version": obs.Version,
			"time":    time.Now().UTC(),
		})
	})

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", d.handleStartSession)
		r.Get("/", d.handleListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", d.handleGetSession)
			r.Post("/close", d.handleCloseSession)
			r.Get("/spins", d.handleListSpins)
			r.Get("/report", d.handleReport)
			r.Get("/duplicates", d.handleDuplicates)
			r.Get("/export", d.handleExport)
		})
	})
	return r
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
