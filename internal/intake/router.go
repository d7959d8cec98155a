package intake

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gommgo/release-machine/internal/api/middleware"
)

// NewRouter builds the Event Intake HTTP router under prefix, wiring the
// teacher's middleware stack (RequestID -> Logging -> Metrics -> RateLimit ->
// CORS -> Compression -> Validation -> Auth) ahead of the handler, grounded
// on the
// teacher's internal/api/router.go construction order. authCfg carries the
// shared-secret header CI authenticates with (spec.md §4.5); when
// authCfg.EnableAPIKey is false, the Auth layer is skipped entirely (local
// development, or deployments that terminate auth at a reverse proxy
// instead).
//
// /table/create and /table/drop additionally require the admin role once
// Auth is on, on top of AllowSchemaBootstrap already gating them off by
// default in the Handler (spec.md §6.1: "production deployments gate
// these").
func NewRouter(prefix string, h *Handler, authCfg middleware.AuthConfig, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	sub := r.PathPrefix(prefix).Subrouter()

	sub.HandleFunc("/release", h.CreateRelease).Methods(http.MethodPost)
	sub.HandleFunc("/release", h.UpdateRelease).Methods(http.MethodPatch)
	sub.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	authEnabled := authCfg.EnableAPIKey || authCfg.EnableJWT || authCfg.SharedSecret != ""

	var tableCreate http.Handler = http.HandlerFunc(h.CreateTable)
	var tableDrop http.Handler = http.HandlerFunc(h.DropTable)
	if authEnabled {
		tableCreate = middleware.RBACMiddleware(middleware.RoleAdmin)(tableCreate)
		tableDrop = middleware.RBACMiddleware(middleware.RoleAdmin)(tableDrop)
	}
	sub.Handle("/table/create", tableCreate).Methods(http.MethodGet)
	sub.Handle("/table/drop", tableDrop).Methods(http.MethodGet)

	var handler http.Handler = r
	if authEnabled {
		handler = middleware.AuthMiddleware(authCfg)(handler)
	}
	handler = middleware.ValidationMiddleware(handler)
	handler = middleware.CompressionMiddleware(handler)
	handler = middleware.CORSMiddleware(middleware.DefaultCORSConfig())(handler)
	handler = middleware.RateLimitMiddleware(600, 100)(handler)
	handler = middleware.MetricsMiddleware(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)
	handler = middleware.RequestIDMiddleware(handler)

	return handler
}
