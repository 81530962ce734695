// Package router implements the edge interceptor that assigns visitors to
// one of two origins per domain and proxies them there.
package router

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mir00r/split-router/internal/domain"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/pkg/logger"
)

// Options tune the router. Zero values fall back to the defaults.
type Options struct {
	// ExcludedPrefixes are path prefixes handed straight to the next handler.
	ExcludedPrefixes []string
	CookiePrefix     string
	// CookieMaxAge is the variant cookie lifetime in seconds.
	CookieMaxAge int
	// Rand returns draws in [0,1) for fresh assignments.
	Rand func() float64
	// Transport carries proxied requests to the origins.
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Router resolves the variant for each request and proxies it to that
// variant's origin. Requests it cannot route go to next unchanged.
type Router struct {
	store  domain.ConfigReader
	next   http.Handler
	opts   Options
	proxy  *proxy
	logger *logger.Logger
}

// New creates a router reading records from store.
func New(store domain.ConfigReader, next http.Handler, opts Options, log *logger.Logger) *Router {
	if opts.CookiePrefix == "" {
		opts.CookiePrefix = domain.CookiePrefix
	}
	if opts.CookieMaxAge == 0 {
		opts.CookieMaxAge = domain.CookieMaxAge
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}

	return &Router{
		store:  store,
		next:   next,
		opts:   opts,
		proxy:  newProxy(opts.Transport, opts.Metrics, log),
		logger: log,
	}
}

// ServeHTTP implements http.Handler
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.excluded(r.URL.Path) {
		rt.next.ServeHTTP(w, r)
		return
	}

	host := domain.ExtractDomain(r.Host)
	key := domain.NormalizeKey(host)
	log := rt.logger.RouterLogger(host, key)
	if rc, ok := domain.RequestContextFrom(r.Context()); ok {
		log = log.WithField("request_id", rc.RequestID)
	}

	cfg, ok := rt.lookup(r.Context(), key, log)
	if !ok {
		rt.next.ServeHTTP(w, r)
		return
	}

	cookieName := domain.CookieName(rt.opts.CookiePrefix, key)
	variant, sticky := rt.resolveVariant(r, cookieName, cfg)

	target, err := RewriteTarget(cfg.TargetURL(variant), PathAndQuery(r))
	if err != nil {
		log.WithError(err).WithField("variant", string(variant)).Warn("Invalid rewrite target, passing request through")
		rt.opts.Metrics.PassThrough("invalid_target")
		rt.next.ServeHTTP(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  string(variant),
		Path:   "/",
		MaxAge: rt.opts.CookieMaxAge,
	})

	log.WithFields(map[string]interface{}{
		"variant": string(variant),
		"sticky":  sticky,
		"target":  target.String(),
	}).Debug("Rewriting request")
	rt.opts.Metrics.Rewrite(string(variant), sticky)

	start := time.Now()
	rt.proxy.serve(w, r, target, log)
	rt.opts.Metrics.ObserveUpstream(time.Since(start).Seconds())
}

// lookup fetches and decodes the record for key. Every failure is logged
// and reported as "not routable".
func (rt *Router) lookup(ctx context.Context, key string, log *logger.Logger) (domain.DomainConfig, bool) {
	raw, err := rt.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			rt.opts.Metrics.PassThrough("no_config")
			return domain.DomainConfig{}, false
		}
		log.WithError(err).Warn("Store lookup failed, passing request through")
		rt.opts.Metrics.StoreLookupError()
		rt.opts.Metrics.PassThrough("store_error")
		return domain.DomainConfig{}, false
	}

	cfg, err := domain.DecodeConfig(raw)
	switch {
	case errors.Is(err, domain.ErrConfigNotFound):
		rt.opts.Metrics.PassThrough("no_config")
		return domain.DomainConfig{}, false
	case err != nil:
		log.WithError(err).Debug("Record is not routable, passing request through")
		rt.opts.Metrics.PassThrough("invalid_config")
		return domain.DomainConfig{}, false
	}
	return cfg, true
}

// resolveVariant reuses an existing cookie value verbatim, otherwise draws
// a fresh assignment.
func (rt *Router) resolveVariant(r *http.Request, cookieName string, cfg domain.DomainConfig) (domain.Variant, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return domain.Variant(c.Value), true
	}

	variant := domain.AssignVariant(rt.opts.Rand(), cfg.EffectiveSplit())
	rt.opts.Metrics.Assignment(string(variant))
	return variant, false
}

func (rt *Router) excluded(path string) bool {
	for _, prefix := range rt.opts.ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// PathAndQuery returns the request's path and query as the client sent them.
func PathAndQuery(r *http.Request) string {
	if strings.HasPrefix(r.RequestURI, "/") {
		return r.RequestURI
	}

	pq := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		pq += "?" + r.URL.RawQuery
	}
	return pq
}

// RewriteTarget appends pathAndQuery to the origin base URL without
// re-encoding either part.
func RewriteTarget(base, pathAndQuery string) (*url.URL, error) {
	target, err := url.Parse(base + pathAndQuery)
	if err != nil {
		return nil, err
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, errors.New("rewrite target must be an absolute http(s) URL")
	}
	if target.Host == "" {
		return nil, errors.New("rewrite target has no host")
	}
	return target, nil
}
