package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnvironment applies SR_* environment variables on top of config.
// Unset variables leave the existing value untouched.
func LoadFromEnvironment(config *Config) {
	// Server Configuration
	if port := getEnv("SR_PORT", ""); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p <= 65535 {
			config.Server.Port = p
		}
	}
	config.Server.ReadTimeout = getEnvDuration("SR_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvDuration("SR_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getEnvDuration("SR_IDLE_TIMEOUT", config.Server.IdleTimeout)
	config.Server.ShutdownTimeout = getEnvDuration("SR_SHUTDOWN_TIMEOUT", config.Server.ShutdownTimeout)

	// Router Configuration
	if prefixes := getEnv("SR_EXCLUDED_PREFIXES", ""); prefixes != "" {
		config.Router.ExcludedPrefixes = splitList(prefixes)
	}
	config.Router.CookiePrefix = getEnv("SR_COOKIE_PREFIX", config.Router.CookiePrefix)
	config.Router.CookieMaxAge = getEnvInt("SR_COOKIE_MAX_AGE", config.Router.CookieMaxAge)
	config.Router.FallbackURL = getEnv("SR_FALLBACK_URL", config.Router.FallbackURL)
	config.Router.StaticDir = getEnv("SR_STATIC_DIR", config.Router.StaticDir)

	// Store Configuration
	config.Store.Backend = getEnv("SR_STORE_BACKEND", config.Store.Backend)
	config.Store.APIURL = getEnv("SR_STORE_API_URL", config.Store.APIURL)
	config.Store.Timeout = getEnvDuration("SR_STORE_TIMEOUT", config.Store.Timeout)
	config.Store.Redis.Addr = getEnv("SR_REDIS_ADDR", config.Store.Redis.Addr)
	config.Store.Redis.Password = getEnv("SR_REDIS_PASSWORD", config.Store.Redis.Password)
	config.Store.Redis.DB = getEnvInt("SR_REDIS_DB", config.Store.Redis.DB)
	config.Store.Redis.KeyPrefix = getEnv("SR_REDIS_KEY_PREFIX", config.Store.Redis.KeyPrefix)

	// Rate Limiting Configuration
	if enabled := getEnv("SR_RATE_LIMIT_ENABLED", ""); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}
	if rps := getEnv("SR_RATE_LIMIT_RPS", ""); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil && r > 0 {
			config.RateLimit.RequestsPerSecond = r
		}
	}
	config.RateLimit.BurstSize = getEnvInt("SR_RATE_LIMIT_BURST", config.RateLimit.BurstSize)
	if proxies := getEnv("SR_RATE_LIMIT_TRUSTED_PROXIES", ""); proxies != "" {
		config.RateLimit.TrustedProxies = strings.Split(proxies, ",")
	}

	// TLS Configuration
	if enabled := getEnv("SR_TLS_ENABLED", ""); enabled != "" {
		config.TLS.Enabled = strings.ToLower(enabled) == "true"
	}
	config.TLS.CertFile = getEnv("SR_TLS_CERT_FILE", config.TLS.CertFile)
	config.TLS.KeyFile = getEnv("SR_TLS_KEY_FILE", config.TLS.KeyFile)

	// Logging Configuration
	config.Logging.Level = getEnv("SR_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("SR_LOG_FORMAT", config.Logging.Format)
	config.Logging.Output = getEnv("SR_LOG_OUTPUT", config.Logging.Output)
	config.Logging.File = getEnv("SR_LOG_FILE", config.Logging.File)
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as integer with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets environment variable as duration with fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig loads configuration with priority: env vars > config file > defaults
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	configFile := getEnv("CONFIG_FILE", "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	LoadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Source describes where the configuration came from, for startup logging.
func Source() string {
	if _, err := os.Stat(getEnv("CONFIG_FILE", "config.yaml")); err == nil {
		return "file+env"
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "SR_") {
			return "environment"
		}
	}
	return "defaults"
}
