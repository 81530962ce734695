package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mir00r/split-router/internal/domain"
)

// MemoryStore keeps records in process memory. It backs local development
// and tests; records do not survive a restart and are not shared between
// instances.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]json.RawMessage),
	}
}

// Get returns the raw record stored under key
func (s *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, exists := s.records[key]
	if !exists {
		return nil, domain.ErrConfigNotFound
	}
	return append(json.RawMessage(nil), raw...), nil
}

// Upsert stores cfg under key
func (s *MemoryStore) Upsert(_ context.Context, key string, cfg domain.DomainConfig) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for %s: %w", key, err)
	}

	s.mu.Lock()
	s.records[key] = raw
	s.mu.Unlock()

	return upsertAck(), nil
}

// Put stores a raw JSON document under key as-is. Tests use it to seed
// records other tools could have written.
func (s *MemoryStore) Put(key string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append(json.RawMessage(nil), raw...)
}

// Keys returns the stored keys in sorted order
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// upsertAck is the response document of backends without a remote API,
// shaped like the management API's success response.
func upsertAck() json.RawMessage {
	return json.RawMessage(`{"status":"ok"}`)
}
