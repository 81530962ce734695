// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/pkg/logger"
	"golang.org/x/net/http2"
)

// Server runs the router over plain HTTP or TLS, with optional HTTP/2.
type Server struct {
	config     config.ServerConfig
	tls        config.TLSConfig
	port       int
	logger     *logger.Logger
	httpServer *http.Server
}

// New creates a server for handler listening on port.
func New(cfg config.ServerConfig, tlsCfg config.TLSConfig, port int, handler http.Handler, logger *logger.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		tls:    tlsCfg,
		port:   port,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if tlsCfg.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: getTLSVersion(tlsCfg.MinVersion),
		}

		if tlsCfg.HTTP2Enabled {
			if err := http2.ConfigureServer(s.httpServer, &http2.Server{
				MaxConcurrentStreams: 1000,
				MaxReadFrameSize:     1 << 20,
				IdleTimeout:          cfg.IdleTimeout,
			}); err != nil {
				return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
			}
		}
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down. A graceful shutdown is not
// reported as an error.
func (s *Server) Start() error {
	var err error
	if s.tls.Enabled {
		s.logger.WithFields(map[string]interface{}{
			"port":          s.port,
			"tls_enabled":   true,
			"http2_enabled": s.tls.HTTP2Enabled,
			"cert_file":     s.tls.CertFile,
		}).Info("Starting HTTPS server")
		err = s.httpServer.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
	} else {
		s.logger.WithFields(map[string]interface{}{
			"port":        s.port,
			"tls_enabled": false,
		}).Info("Starting HTTP server")
		err = s.httpServer.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error shutting down server")
		return err
	}
	return nil
}

// getTLSVersion converts a version string to its TLS constant
func getTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// ShutdownContext bounds a graceful shutdown by the configured timeout.
func (s *Server) ShutdownContext() (context.Context, context.CancelFunc) {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
