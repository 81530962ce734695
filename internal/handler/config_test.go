package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	apperrors "github.com/mir00r/split-router/internal/errors"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/internal/store"
	"github.com/mir00r/split-router/pkg/logger"
)

const adminToken = "s3cret"

var testSecrets = config.Secrets{AdminToken: adminToken}

func newTestHandler(s *store.MemoryStore) *ConfigHandler {
	return NewConfigHandler(s, s, testSecrets, metrics.New(), logger.NewNop())
}

func getConfig(h *ConfigHandler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.GetConfigHandler(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func postUpdate(h *ConfigHandler, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/update", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.UpdateHandler(rec, req)
	return rec
}

func TestGetConfigReturnsRecordVerbatim(t *testing.T) {
	s := store.NewMemoryStore()
	record := `{"urlA":"https://v1.example.com","urlB":"https://v2.example.com","split":0.3,"note":"kept"}`
	s.Put("shop_example_com", json.RawMessage(record))

	rec := getConfig(newTestHandler(s), http.MethodGet, "/api/get-config?domain=shop.example.com&token=s3cret")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, record, rec.Body.String())
}

func TestGetConfigErrors(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put("null_example_com", json.RawMessage(`null`))
	s.Put("empty_example_com", json.RawMessage(`""`))
	h := newTestHandler(s)

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantErr  string
	}{
		{"wrong method", http.MethodPost, "/api/get-config?domain=a.com&token=s3cret", http.StatusMethodNotAllowed, "Method not allowed"},
		{"no token", http.MethodGet, "/api/get-config?domain=a.com", http.StatusUnauthorized, "Unauthorized"},
		{"bad token", http.MethodGet, "/api/get-config?domain=a.com&token=nope", http.StatusUnauthorized, "Unauthorized"},
		{"repeated token", http.MethodGet, "/api/get-config?domain=a.com&token=s3cret&token=s3cret", http.StatusUnauthorized, "Unauthorized"},
		{"bad token without domain", http.MethodGet, "/api/get-config?token=nope", http.StatusUnauthorized, "Unauthorized"},
		{"no domain", http.MethodGet, "/api/get-config?token=s3cret", http.StatusBadRequest, "Missing domain parameter"},
		{"empty domain", http.MethodGet, "/api/get-config?domain=&token=s3cret", http.StatusBadRequest, "Missing domain parameter"},
		{"repeated domain", http.MethodGet, "/api/get-config?domain=a.com&domain=b.com&token=s3cret", http.StatusBadRequest, "Missing domain parameter"},
		{"missing record", http.MethodGet, "/api/get-config?domain=unknown.com&token=s3cret", http.StatusNotFound, "Configuration not found"},
		{"null record", http.MethodGet, "/api/get-config?domain=null.example.com&token=s3cret", http.StatusNotFound, "Configuration not found"},
		{"empty string record", http.MethodGet, "/api/get-config?domain=empty.example.com&token=s3cret", http.StatusNotFound, "Configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := getConfig(h, tt.method, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantErr+`"}`, rec.Body.String())
		})
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenStore) Upsert(context.Context, string, domain.DomainConfig) (json.RawMessage, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGetConfigStoreFailureHidesDetail(t *testing.T) {
	h := NewConfigHandler(brokenStore{}, brokenStore{}, testSecrets, nil, logger.NewNop())

	rec := getConfig(h, http.MethodGet, "/api/get-config?domain=a.com&token=s3cret")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestGetConfigUnsetAdminTokenRejectsEverything(t *testing.T) {
	h := NewConfigHandler(store.NewMemoryStore(), nil, config.Secrets{}, nil, logger.NewNop())

	rec := getConfig(h, http.MethodGet, "/api/get-config?domain=a.com&token=")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = getConfig(h, http.MethodGet, "/api/get-config?domain=a.com")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStoresNormalizedKey(t *testing.T) {
	s := store.NewMemoryStore()
	h := newTestHandler(s)

	rec := postUpdate(h, "application/json",
		`{"domain":"shop.example.com","urlA":"https://v1.example.com","urlB":"https://v2.example.com","split":"0.3","token":"s3cret"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, rec.Body.String())
	assert.Equal(t, []string{"shop_example_com"}, s.Keys())

	raw, err := s.Get(context.Background(), "shop_example_com")
	require.NoError(t, err)
	assert.JSONEq(t, `{"urlA":"https://v1.example.com","urlB":"https://v2.example.com","split":0.3}`, string(raw))

	read := getConfig(h, http.MethodGet, "/api/get-config?domain=shop.example.com&token=s3cret")
	assert.Equal(t, http.StatusOK, read.Code)
	assert.JSONEq(t, string(raw), read.Body.String())
}

func TestUpdateSplitDefaults(t *testing.T) {
	tests := []struct {
		name  string
		split string
		want  float64
	}{
		{"absent", ``, 0.5},
		{"number", `,"split":0.25`, 0.25},
		{"numeric prefix", `,"split":"0.7abc"`, 0.7},
		{"garbage", `,"split":"abc"`, 0.5},
		{"zero", `,"split":0`, 0.5},
		{"null", `,"split":null`, 0.5},
		{"out of range is kept", `,"split":1.5`, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			rec := postUpdate(newTestHandler(s), "application/json",
				`{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":"s3cret"`+tt.split+`}`)
			require.Equal(t, http.StatusOK, rec.Code)

			raw, err := s.Get(context.Background(), "a_com")
			require.NoError(t, err)
			var stored domain.DomainConfig
			require.NoError(t, json.Unmarshal(raw, &stored))
			assert.Equal(t, tt.want, stored.Split)
		})
	}
}

func TestUpdateAcceptsFormBody(t *testing.T) {
	s := store.NewMemoryStore()

	rec := postUpdate(newTestHandler(s), "application/x-www-form-urlencoded",
		"domain=a.com&urlA=https%3A%2F%2Fa&urlB=https%3A%2F%2Fb&split=0.9&token=s3cret")

	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := s.Get(context.Background(), "a_com")
	require.NoError(t, err)
	assert.JSONEq(t, `{"urlA":"https://a","urlB":"https://b","split":0.9}`, string(raw))
}

func TestUpdateErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"bad token with all fields", `{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":"nope"}`, http.StatusUnauthorized, "Unauthorized"},
		{"bad token without fields", `{"token":"nope"}`, http.StatusUnauthorized, "Unauthorized"},
		{"non-string token", `{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":123}`, http.StatusUnauthorized, "Unauthorized"},
		{"unparseable body", `{not json`, http.StatusUnauthorized, "Unauthorized"},
		{"array body", `["s3cret"]`, http.StatusUnauthorized, "Unauthorized"},
		{"missing domain", `{"urlA":"https://a","urlB":"https://b","token":"s3cret"}`, http.StatusBadRequest, "Missing required fields"},
		{"empty urlA", `{"domain":"a.com","urlA":"","urlB":"https://b","token":"s3cret"}`, http.StatusBadRequest, "Missing required fields"},
		{"missing urlB", `{"domain":"a.com","urlA":"https://a","token":"s3cret"}`, http.StatusBadRequest, "Missing required fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			rec := postUpdate(newTestHandler(s), "application/json", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantErr+`"}`, rec.Body.String())
			assert.Empty(t, s.Keys())
		})
	}
}

func TestUpdateMethodNotAllowed(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.UpdateHandler(rec, httptest.NewRequest(method, "/api/update", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
	}
}

func TestUpdateWithoutWriter(t *testing.T) {
	h := NewConfigHandler(store.NewMemoryStore(), nil, testSecrets, nil, logger.NewNop())

	rec := postUpdate(h, "application/json", `{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":"s3cret"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())

	rec = postUpdate(h, "application/json", `{"token":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "token is checked first")
}

type rejectingWriter struct {
	status  int
	payload string
}

func (w rejectingWriter) Upsert(context.Context, string, domain.DomainConfig) (json.RawMessage, error) {
	return nil, apperrors.NewUpstreamError("edge_config", w.status, json.RawMessage(w.payload))
}

func TestUpdatePropagatesUpstreamStatus(t *testing.T) {
	h := NewConfigHandler(store.NewMemoryStore(),
		rejectingWriter{status: http.StatusForbidden, payload: `{"code":"forbidden","message":"Not authorized"}`},
		testSecrets, metrics.New(), logger.NewNop())

	rec := postUpdate(h, "application/json", `{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":"s3cret"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"forbidden","message":"Not authorized"}}`, rec.Body.String())
}

func TestUpdateTransportFailure(t *testing.T) {
	h := NewConfigHandler(brokenStore{}, brokenStore{}, testSecrets, nil, logger.NewNop())

	rec := postUpdate(h, "application/json", `{"domain":"a.com","urlA":"https://a","urlB":"https://b","token":"s3cret"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestWriteErrorResponseUsesErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *apperrors.RouterError
		wantCode int
		wantBody string
	}{
		{"unauthorized", apiError(apperrors.ErrCodeUnauthorized, msgUnauthorized), http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"invalid request", apiError(apperrors.ErrCodeInvalidRequest, msgMissingFields), http.StatusBadRequest, `{"error":"Missing required fields"}`},
		{"not found", apiError(apperrors.ErrCodeNotFound, msgNotFound), http.StatusNotFound, `{"error":"Configuration not found"}`},
		{"method", apiError(apperrors.ErrCodeMethodNotAllowed, msgMethodNotAllowed), http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"server configuration", apiError(apperrors.ErrCodeServerConfiguration, msgServerConfiguration), http.StatusInternalServerError, `{"error":"Server configuration error"}`},
		{"wrapped store failure", apperrors.WrapError(errors.New("dial tcp: refused"), apperrors.ErrCodeInternalError, configComponent, msgInternal), http.StatusInternalServerError, `{"error":"Internal server error"}`},
		{"upstream payload", apperrors.NewUpstreamError("edge_config", http.StatusForbidden, json.RawMessage(`{"code":"forbidden"}`)), http.StatusForbidden, `{"error":{"code":"forbidden"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErrorResponse(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
