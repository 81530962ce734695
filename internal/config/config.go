package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Store backends
const (
	BackendEdgeConfig = "edge-config"
	BackendRedis      = "redis"
	BackendMemory     = "memory"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	TLS       TLSConfig       `yaml:"tls"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RouterConfig configures the edge interceptor
type RouterConfig struct {
	// ExcludedPrefixes are raw path prefixes the router never intercepts.
	ExcludedPrefixes []string `yaml:"excluded_prefixes"`
	CookiePrefix     string   `yaml:"cookie_prefix"`
	CookieMaxAge     int      `yaml:"cookie_max_age"`
	// FallbackURL receives pass-through traffic when set.
	FallbackURL string `yaml:"fallback_url"`
	// StaticDir serves pass-through traffic when FallbackURL is empty.
	StaticDir string `yaml:"static_dir"`
}

// StoreConfig selects and configures the key-value store backend
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the redis backend
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RateLimitConfig limits requests to the configuration endpoints per client
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
	// TrustedProxies lists the peers, as IPs or CIDRs, whose
	// X-Forwarded-For and X-Real-IP headers identify the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TLSConfig defines TLS/SSL configuration
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	MinVersion   string `yaml:"min_version"`
	HTTP2Enabled bool   `yaml:"http2_enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// DefaultExcludedPrefixes mirror the platform's API and framework asset namespaces.
var DefaultExcludedPrefixes = []string{"/api", "/_next/static", "/_next/image", "/favicon.ico"}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Router: RouterConfig{
			ExcludedPrefixes: append([]string(nil), DefaultExcludedPrefixes...),
			CookiePrefix:     "sr_variant_",
			CookieMaxAge:     60 * 60 * 24 * 30,
		},
		Store: StoreConfig{
			Backend: BackendEdgeConfig,
			APIURL:  "https://api.vercel.com",
			Timeout: 10 * time.Second,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "split-router:",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
		TLS: TLSConfig{
			MinVersion:   "1.2",
			HTTP2Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Router.CookiePrefix == "" {
		return fmt.Errorf("router.cookie_prefix cannot be empty")
	}
	if c.Router.CookieMaxAge <= 0 {
		return fmt.Errorf("router.cookie_max_age must be positive: %d", c.Router.CookieMaxAge)
	}
	for i, prefix := range c.Router.ExcludedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("router.excluded_prefixes[%d]: %q must start with /", i, prefix)
		}
	}
	if c.Router.FallbackURL != "" {
		if err := validateOrigin(c.Router.FallbackURL); err != nil {
			return fmt.Errorf("router.fallback_url: %w", err)
		}
	}

	switch c.Store.Backend {
	case BackendEdgeConfig:
		if err := validateOrigin(c.Store.APIURL); err != nil {
			return fmt.Errorf("store.api_url: %w", err)
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr cannot be empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive: %v", c.Store.Timeout)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
		if _, err := ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
			return fmt.Errorf("rate_limit.trusted_proxies: %w", err)
		}
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

func validateOrigin(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// ParseTrustedProxies converts IP and CIDR entries into networks. A bare IP
// becomes a single-address network.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, n, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", entry)
			}
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", entry)
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}
