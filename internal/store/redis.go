package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	apperrors "github.com/mir00r/split-router/internal/errors"
	"github.com/mir00r/split-router/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

// RedisStore keeps one JSON document per lookup key in redis.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *logger.Logger
}

// NewRedisStore connects to the redis server described by cfg.
func NewRedisStore(cfg config.RedisConfig, log *logger.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, log)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log.StoreLogger(redisBackend),
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.keyPrefix + key
}

// Get returns the document stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError(redisBackend, "get", err)
	}
	if !json.Valid(val) {
		return nil, apperrors.NewStoreError(redisBackend, "get",
			fmt.Errorf("value for %s is not valid JSON", key))
	}
	return val, nil
}

// Upsert overwrites the document stored under key
func (s *RedisStore) Upsert(ctx context.Context, key string, cfg domain.DomainConfig) (json.RawMessage, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), raw, 0).Err(); err != nil {
		return nil, apperrors.NewStoreError(redisBackend, "upsert", err)
	}

	s.logger.WithField("lookup_key", key).Info("Record upserted")
	return upsertAck(), nil
}

// Ping checks the connection to redis
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewStoreError(redisBackend, "ping", err)
	}
	return nil
}

// Close releases the client's connections
func (s *RedisStore) Close() error {
	return s.client.Close()
}
