package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Variant is one of the two routing outcomes.
type Variant string

const (
	// VariantA routes to DomainConfig.URLA
	VariantA Variant = "A"
	// VariantB routes to DomainConfig.URLB
	VariantB Variant = "B"
)

// DefaultSplit is used whenever a stored split is absent, zero or not a number.
const DefaultSplit = 0.5

var (
	// ErrConfigNotFound is returned by stores when no record exists for a key.
	ErrConfigNotFound = errors.New("domain configuration not found")

	// ErrInvalidConfig is returned when a stored record cannot be used for routing.
	ErrInvalidConfig = errors.New("domain configuration is not routable")
)

// DomainConfig is the per-domain routing record.
type DomainConfig struct {
	URLA  string  `json:"urlA"`
	URLB  string  `json:"urlB"`
	Split float64 `json:"split"`
}

// Routable reports whether both origins are set.
func (c DomainConfig) Routable() bool {
	return c.URLA != "" && c.URLB != ""
}

// EffectiveSplit returns the split used for fresh assignments.
func (c DomainConfig) EffectiveSplit() float64 {
	if c.Split == 0 || math.IsNaN(c.Split) {
		return DefaultSplit
	}
	return c.Split
}

// TargetURL returns the origin for a variant. Anything but "A" selects URLB.
func (c DomainConfig) TargetURL(v Variant) string {
	if v == VariantA {
		return c.URLA
	}
	return c.URLB
}

// storedConfig mirrors DomainConfig with loosely typed fields so that
// records written by other tools still decode.
type storedConfig struct {
	URLA  interface{} `json:"urlA"`
	URLB  interface{} `json:"urlB"`
	Split interface{} `json:"split"`
}

// DecodeConfig decodes a stored record. A JSON null yields ErrConfigNotFound;
// a record that is not an object or lacks either URL yields ErrInvalidConfig.
func DecodeConfig(raw json.RawMessage) (DomainConfig, error) {
	if IsEmptyValue(raw) {
		return DomainConfig{}, ErrConfigNotFound
	}

	var stored storedConfig
	if err := json.Unmarshal(raw, &stored); err != nil {
		return DomainConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	urlA, _ := stored.URLA.(string)
	urlB, _ := stored.URLB.(string)
	cfg := DomainConfig{
		URLA:  urlA,
		URLB:  urlB,
		Split: ParseSplit(stored.Split),
	}
	if !cfg.Routable() {
		return cfg, ErrInvalidConfig
	}
	return cfg, nil
}

// IsEmptyValue reports whether a stored JSON value counts as "no record":
// missing, null, false, 0 or the empty string.
func IsEmptyValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}

	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}
	switch value := v.(type) {
	case nil:
		return true
	case bool:
		return !value
	case float64:
		return value == 0
	case string:
		return value == ""
	default:
		return false
	}
}

// ConfigReader reads raw records by lookup key.
type ConfigReader interface {
	// Get returns the stored JSON for key, or ErrConfigNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)
}

// ConfigWriter upserts records by lookup key.
type ConfigWriter interface {
	// Upsert inserts or overwrites the record for key and returns the
	// backend's response document.
	Upsert(ctx context.Context, key string, cfg DomainConfig) (json.RawMessage, error)
}

// ConfigStore is a backend that supports both directions.
type ConfigStore interface {
	ConfigReader
	ConfigWriter
}
