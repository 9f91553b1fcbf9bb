package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/decision"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/orgs"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	OrgsHandler     *orgs.Handler
	DecisionHandler *decision.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Guardpost defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.OrgsHandler != nil {
		r.Route("/v1/orgs", params.OrgsHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/v1/users", params.UsersHandler.MountRoutes)
	}
	if params.DecisionHandler != nil {
		r.Route("/v1/decisions", params.DecisionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
