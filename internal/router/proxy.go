package router

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/pkg/logger"
)

type targetKey struct{}

type proxyLogKey struct{}

// proxy forwards requests to the per-request target stored in the context.
type proxy struct {
	rp      *httputil.ReverseProxy
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func newProxy(transport http.RoundTripper, m *metrics.Metrics, log *logger.Logger) *proxy {
	p := &proxy{metrics: m, logger: log}
	p.rp = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    transport,
		ErrorHandler: p.handleError,
	}
	return p
}

func (p *proxy) serve(w http.ResponseWriter, r *http.Request, target *url.URL, log *logger.Logger) {
	ctx := context.WithValue(r.Context(), targetKey{}, target)
	ctx = context.WithValue(ctx, proxyLogKey{}, log)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

func (p *proxy) rewrite(pr *httputil.ProxyRequest) {
	target, _ := pr.In.Context().Value(targetKey{}).(*url.URL)
	if target == nil {
		return
	}

	out := *target
	pr.Out.URL = &out
	pr.Out.Host = ""
	pr.SetXForwarded()
	pr.Out.Header.Set("X-Forwarded-By", "SplitRouter/1.0")
}

func (p *proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log, ok := r.Context().Value(proxyLogKey{}).(*logger.Logger)
	if !ok {
		log = p.logger
	}
	if target, ok := r.Context().Value(targetKey{}).(*url.URL); ok {
		log = log.WithField("target", target.Redacted())
	}

	log.WithError(err).Error("Origin request failed")
	p.metrics.ProxyError()
	w.WriteHeader(http.StatusBadGateway)
}
