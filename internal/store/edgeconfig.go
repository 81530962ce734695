package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mir00r/split-router/internal/domain"
	apperrors "github.com/mir00r/split-router/internal/errors"
	"github.com/mir00r/split-router/pkg/logger"
	"github.com/tidwall/gjson"
)

const (
	edgeConfigBackend = "edge_config"

	// maxResponseBytes bounds how much of a remote response is read.
	maxResponseBytes = 1 << 20

	defaultUpsertError = "Failed to update Edge Config"
)

// EdgeConfigReader reads items from an edge config store over its read API.
type EdgeConfigReader struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logger.Logger
}

// NewEdgeConfigReader creates a reader for the store at baseURL
// (https://edge-config.vercel.com/<id>) authenticated with a read token.
func NewEdgeConfigReader(baseURL, token string, client *http.Client, log *logger.Logger) *EdgeConfigReader {
	return &EdgeConfigReader{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
		logger:  log.StoreLogger(edgeConfigBackend),
	}
}

// Get fetches the item stored under key. A 404 means the item does not exist.
func (r *EdgeConfigReader) Get(ctx context.Context, key string) (json.RawMessage, error) {
	itemURL := fmt.Sprintf("%s/item/%s?version=1", r.baseURL, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, itemURL, nil)
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "get", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "get", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "get", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrConfigNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewStoreError(edgeConfigBackend, "get",
			fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithMetadata("status", resp.StatusCode)
	case !json.Valid(body):
		return nil, apperrors.NewStoreError(edgeConfigBackend, "get",
			fmt.Errorf("response for %s is not valid JSON", key))
	}

	r.logger.WithField("lookup_key", key).Debug("Edge config item fetched")
	return body, nil
}

// ManagementClient upserts items through the store's management API.
type ManagementClient struct {
	apiURL  string
	token   string
	storeID string
	teamID  string
	client  *http.Client
	logger  *logger.Logger
}

// NewManagementClient creates a management API client for storeID.
func NewManagementClient(apiURL, token, storeID, teamID string, client *http.Client, log *logger.Logger) *ManagementClient {
	return &ManagementClient{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		token:   token,
		storeID: storeID,
		teamID:  teamID,
		client:  client,
		logger:  log.StoreLogger(edgeConfigBackend),
	}
}

type itemOperation struct {
	Operation string              `json:"operation"`
	Key       string              `json:"key"`
	Value     domain.DomainConfig `json:"value"`
}

type itemsPatch struct {
	Items []itemOperation `json:"items"`
}

// Upsert writes cfg under key. A non-2xx answer is returned as an upstream
// error carrying the remote status and the remote "error" payload.
func (m *ManagementClient) Upsert(ctx context.Context, key string, cfg domain.DomainConfig) (json.RawMessage, error) {
	payload, err := json.Marshal(itemsPatch{
		Items: []itemOperation{{Operation: "upsert", Key: key, Value: cfg}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upsert for %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, m.itemsURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "upsert", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "upsert", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "upsert", err)
	}
	if !json.Valid(body) {
		return nil, apperrors.NewStoreError(edgeConfigBackend, "upsert",
			fmt.Errorf("management API answered %d with a non-JSON body", resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.logger.WithFields(map[string]interface{}{
			"lookup_key": key,
			"status":     resp.StatusCode,
		}).Warn("Management API rejected upsert")
		return nil, apperrors.NewUpstreamError(edgeConfigBackend, resp.StatusCode, remoteError(body))
	}

	m.logger.WithField("lookup_key", key).Info("Edge config item upserted")
	return body, nil
}

func (m *ManagementClient) itemsURL() string {
	u := fmt.Sprintf("%s/v1/edge-config/%s/items", m.apiURL, url.PathEscape(m.storeID))
	if m.teamID != "" {
		u += "?teamId=" + url.QueryEscape(m.teamID)
	}
	return u
}

// remoteError extracts the "error" member of a management API response, or
// a generic message when the member is missing or falsy.
func remoteError(body []byte) json.RawMessage {
	result := gjson.GetBytes(body, "error")
	if isFalsy(result) {
		msg, _ := json.Marshal(defaultUpsertError)
		return msg
	}
	return json.RawMessage(result.Raw)
}

// isFalsy reports whether a JSON value is absent, null, false, 0 or "".
func isFalsy(result gjson.Result) bool {
	if !result.Exists() {
		return true
	}
	switch result.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.Number:
		return result.Num == 0
	case gjson.String:
		return result.Str == ""
	}
	return false
}
