package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/handler"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/internal/middleware"
	"github.com/mir00r/split-router/pkg/logger"
)

// CORS method lists advertised by the configuration endpoints.
const (
	readMethods  = "GET, OPTIONS"
	writeMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// Routes holds everything the HTTP surface is built from.
type Routes struct {
	// Edge receives every request not claimed by an /api route.
	Edge   http.Handler
	Config *handler.ConfigHandler
	Health *handler.HealthHandler
	// RateLimiter guards the configuration endpoints when set.
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	// Secrets gates /api/metrics behind the admin token.
	Secrets config.Secrets
	Logger  *logger.Logger
}

// NewHandler builds the root handler.
func NewHandler(routes Routes) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.SecurityHeadersMiddleware())

	api.Handle("/get-config", configChain(routes, readMethods, routes.Config.GetConfigHandler))
	api.Handle("/update", configChain(routes, writeMethods, routes.Config.UpdateHandler))

	api.HandleFunc("/health", routes.Health.HealthHandler).Methods(http.MethodGet)
	api.HandleFunc("/readiness", routes.Health.ReadinessHandler).Methods(http.MethodGet)
	api.HandleFunc("/liveness", routes.Health.LivenessHandler).Methods(http.MethodGet)
	api.Handle("/metrics", middleware.BearerAuthMiddleware(routes.Secrets.AdminTokenMatches)(routes.Metrics.Handler())).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(routes.Edge)

	var root http.Handler = r
	root = middleware.LoggingMiddleware(routes.Logger)(root)
	root = middleware.RecoveryMiddleware(routes.Logger)(root)
	return root
}

func configChain(routes Routes, methods string, h http.HandlerFunc) http.Handler {
	var chain http.Handler = h
	if routes.RateLimiter != nil {
		chain = routes.RateLimiter.RateLimitMiddleware()(chain)
	}
	return middleware.CORSMiddleware(methods)(chain)
}
