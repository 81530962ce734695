// Package store provides the key-value backends that hold per-domain
// routing records.
package store

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	"github.com/mir00r/split-router/pkg/logger"
)

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend bundles the reader and writer selected by configuration.
type Backend struct {
	Name   string
	Reader domain.ConfigReader
	// Writer is nil when the backend is read-only because management
	// credentials are missing.
	Writer domain.ConfigWriter

	closers []io.Closer
}

// New builds the backend named by cfg.Backend.
func New(cfg config.StoreConfig, secrets config.Secrets, log *logger.Logger) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendEdgeConfig:
		baseURL, token, err := secrets.ReadEndpoint()
		if err != nil {
			return nil, fmt.Errorf("edge config backend: %w", err)
		}

		client := &http.Client{Timeout: cfg.Timeout}
		backend := &Backend{
			Name:   cfg.Backend,
			Reader: NewEdgeConfigReader(baseURL, token, client, log),
		}
		if secrets.ManagementAvailable() {
			backend.Writer = NewManagementClient(cfg.APIURL, secrets.ManagementToken,
				secrets.StoreID, secrets.TeamID, client, log)
		} else {
			log.StoreLogger(edgeConfigBackend).Warn("Management credentials missing, configuration writes are disabled")
		}
		return backend, nil

	case config.BackendRedis:
		rs := NewRedisStore(cfg.Redis, log)
		return &Backend{Name: cfg.Backend, Reader: rs, Writer: rs, closers: []io.Closer{rs}}, nil

	case config.BackendMemory:
		ms := NewMemoryStore()
		return &Backend{Name: cfg.Backend, Reader: ms, Writer: ms}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Ping checks the reader when it supports health checks.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.Reader.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
