package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/handler"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/internal/middleware"
	"github.com/mir00r/split-router/internal/router"
	"github.com/mir00r/split-router/internal/server"
	"github.com/mir00r/split-router/internal/store"
	"github.com/mir00r/split-router/pkg/logger"
)

const version = "1.0.0"

func main() {
	// One-off admin processes share the configuration of the server
	if checkIfAdminMode() {
		runAdminProcess()
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	secrets := config.LoadSecrets()
	port := getPort(cfg.Server.Port)

	log.WithFields(map[string]interface{}{
		"version":       version,
		"port":          port,
		"store_backend": cfg.Store.Backend,
		"config_source": config.Source(),
		"secrets":       secrets.String(),
		"process":       getProcessInfo(),
	}).Info("Starting split router")

	backend, err := store.New(cfg.Store, secrets, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("Error closing store")
		}
	}()

	srv, err := buildServer(cfg, secrets, backend, port, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to build server")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	ctx, cancel := srv.ShutdownContext()
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}

	log.Info("Split router stopped gracefully")
}

// buildServer assembles the handlers around backend.
func buildServer(cfg *config.Config, secrets config.Secrets, backend *store.Backend, port int, log *logger.Logger) (*server.Server, error) {
	m := metrics.New()

	passThrough, err := handler.NewPassThroughHandler(cfg.Router, log)
	if err != nil {
		return nil, err
	}

	routes := server.Routes{
		Edge: router.New(backend.Reader, passThrough, router.Options{
			ExcludedPrefixes: cfg.Router.ExcludedPrefixes,
			CookiePrefix:     cfg.Router.CookiePrefix,
			CookieMaxAge:     cfg.Router.CookieMaxAge,
			Metrics:          m,
		}, log),
		Config:  handler.NewConfigHandler(backend.Reader, backend.Writer, secrets, m, log),
		Health:  handler.NewHealthHandler(version, backend.Name, backend, log),
		Metrics: m,
		Secrets: secrets,
		Logger:  log,
	}

	if cfg.RateLimit.Enabled {
		routes.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit, m, log)
		log.Info("Rate limiting enabled for configuration endpoints")
	}

	return server.New(cfg.Server, cfg.TLS, port, server.NewHandler(routes), log)
}
