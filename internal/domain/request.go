package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type requestContextKey struct{}

// RequestContext contains request-specific information
type RequestContext struct {
	RequestID  string
	RemoteAddr string
	UserAgent  string
	Method     string
	Path       string
	Host       string
	StartTime  time.Time
}

// NewRequestContext creates a new RequestContext from an HTTP request.
// An incoming X-Request-ID is kept so ids line up with upstream proxies.
func NewRequestContext(r *http.Request) *RequestContext {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &RequestContext{
		RequestID:  requestID,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Method:     r.Method,
		Path:       r.URL.Path,
		Host:       r.Host,
		StartTime:  time.Now(),
	}
}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext stored in ctx, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
