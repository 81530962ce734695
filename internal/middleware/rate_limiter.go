package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/pkg/logger"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	// limiterTTL is how long an idle client keeps its limiter.
	limiterTTL      = 10 * time.Minute
	cleanupInterval = time.Minute
)

// RateLimiter manages per-client token buckets for the API endpoints.
// Idle clients are evicted from the cache after limiterTTL.
type RateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	trusted  []*net.IPNet
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewRateLimiter creates a new rate limiter. Invalid trusted proxy entries
// are rejected by config validation and skipped here.
func NewRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics, logger *logger.Logger) *RateLimiter {
	log := logger.MiddlewareLogger("rate_limiter")

	trusted, err := config.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Warn("Ignoring trusted proxies")
		trusted = nil
	}

	return &RateLimiter{
		limiters: cache.New(limiterTTL, cleanupInterval),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		trusted:  trusted,
		metrics:  m,
		logger:   log,
	}
}

// getLimiter gets or creates the limiter for a client and refreshes its expiry
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var limiter *rate.Limiter
	if cached, found := rl.limiters.Get(ip); found {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	rl.limiters.Set(ip, limiter, cache.DefaultExpiration)
	return limiter
}

// RateLimitMiddleware provides rate limiting functionality
func (rl *RateLimiter) RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := rl.clientIP(r)
			limiter := rl.getLimiter(clientIP)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.2f", float64(rl.rate)))

			if !limiter.Allow() {
				rl.logger.WithFields(map[string]interface{}{
					"client_ip": clientIP,
					"path":      r.URL.Path,
					"method":    r.Method,
				}).Warn("Rate limit exceeded")
				rl.metrics.RateLimited()

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActiveClients returns the number of clients with a live limiter.
func (rl *RateLimiter) ActiveClients() int {
	return rl.limiters.ItemCount()
}

// clientIP identifies the caller. Forwarding headers are honoured only
// when the connecting peer is a trusted proxy; X-Forwarded-For is then read
// right to left, skipping trusted hops.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !rl.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !rl.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (rl *RateLimiter) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range rl.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
