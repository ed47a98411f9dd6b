// Package httptransport assembles the engine's HTTP surface: route wiring,
// request middleware, and the operational endpoints. Handlers live with
// their modules; this package only composes them.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "heirloom/internal/account/handler"
	audithandler "heirloom/internal/audit/handler"
	enginehandler "heirloom/internal/engine/handler"
	"heirloom/internal/platform/middleware"
)

// Dependencies collects the handlers and middleware inputs the router needs.
type Dependencies struct {
	Engine  *enginehandler.Handler
	Account *accounthandler.Handler
	Audit   *audithandler.Handler
	Auth    middleware.TokenValidator
	Health  func() error
	Logger  *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)

	deps.Engine.Register(r)
	deps.Account.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Auth, deps.Logger))
		deps.Engine.RegisterProtected(r)
		deps.Audit.Register(r)
	})

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
