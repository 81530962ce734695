package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	apperrors "github.com/mir00r/split-router/internal/errors"
	"github.com/mir00r/split-router/internal/metrics"
	"github.com/mir00r/split-router/pkg/logger"
)

// maxBodyBytes caps configuration write bodies.
const maxBodyBytes = 64 << 10

// ConfigHandler serves the token-protected configuration read and write
// endpoints.
type ConfigHandler struct {
	reader  domain.ConfigReader
	writer  domain.ConfigWriter
	secrets config.Secrets
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewConfigHandler creates the configuration handler. writer may be nil,
// in which case every authorized write fails with a server configuration
// error.
func NewConfigHandler(reader domain.ConfigReader, writer domain.ConfigWriter, secrets config.Secrets, m *metrics.Metrics, logger *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		reader:  reader,
		writer:  writer,
		secrets: secrets,
		metrics: m,
		logger:  logger,
	}
}

// GetConfigHandler returns the stored record for ?domain= verbatim.
func (h *ConfigHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(h.logger.AdminLogger("get_config"), r)

	if r.Method != http.MethodGet {
		writeErrorResponse(w, apiError(apperrors.ErrCodeMethodNotAllowed, msgMethodNotAllowed))
		return
	}

	query := r.URL.Query()
	token, ok := singleValue(query, "token")
	if !ok || !h.secrets.AdminTokenMatches(token) {
		writeErrorResponse(w, apiError(apperrors.ErrCodeUnauthorized, msgUnauthorized))
		return
	}

	domainName, ok := singleValue(query, "domain")
	if !ok || domainName == "" {
		writeErrorResponse(w, apiError(apperrors.ErrCodeInvalidRequest, msgMissingDomain))
		return
	}

	key := domain.NormalizeKey(domainName)
	log = log.WithField("lookup_key", key)

	raw, err := h.reader.Get(r.Context(), key)
	if errors.Is(err, domain.ErrConfigNotFound) || (err == nil && domain.IsEmptyValue(raw)) {
		h.metrics.ConfigRead("not_found")
		writeErrorResponse(w, apiError(apperrors.ErrCodeNotFound, msgNotFound))
		return
	}
	if err != nil {
		log.WithError(err).WithField("error_code", apperrors.GetErrorCode(err)).Error("Failed to read configuration")
		h.metrics.ConfigRead("error")
		writeErrorResponse(w, apperrors.WrapError(err, apperrors.ErrCodeInternalError, configComponent, msgInternal))
		return
	}

	h.metrics.ConfigRead("found")
	writeRawJSON(w, http.StatusOK, raw)
}

// UpdateHandler upserts the record for the submitted domain.
func (h *ConfigHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(h.logger.AdminLogger("update_config"), r)

	if r.Method != http.MethodPost {
		writeErrorResponse(w, apiError(apperrors.ErrCodeMethodNotAllowed, msgMethodNotAllowed))
		return
	}

	body := readUpdateBody(r)

	token, _ := body["token"].(string)
	if !h.secrets.AdminTokenMatches(token) {
		writeErrorResponse(w, apiError(apperrors.ErrCodeUnauthorized, msgUnauthorized))
		return
	}

	domainName, _ := body["domain"].(string)
	urlA, _ := body["urlA"].(string)
	urlB, _ := body["urlB"].(string)
	if domainName == "" || urlA == "" || urlB == "" {
		writeErrorResponse(w, apiError(apperrors.ErrCodeInvalidRequest, msgMissingFields))
		return
	}

	if h.writer == nil {
		log.Error("Configuration writes are not configured")
		h.metrics.ConfigUpsert("error")
		writeErrorResponse(w, apiError(apperrors.ErrCodeServerConfiguration, msgServerConfiguration))
		return
	}

	key := domain.NormalizeKey(domainName)
	cfg := domain.DomainConfig{
		URLA:  urlA,
		URLB:  urlB,
		Split: domain.ParseSplit(body["split"]),
	}
	log = log.WithFields(map[string]interface{}{
		"lookup_key": key,
		"split":      cfg.Split,
	})

	data, err := h.writer.Upsert(r.Context(), key, cfg)
	if err != nil {
		if upstream, ok := apperrors.AsUpstream(err); ok {
			log.WithField("status", upstream.HTTPStatusCode()).Warn("Store rejected configuration write")
			h.metrics.ConfigUpsert("rejected")
			writeErrorResponse(w, upstream)
			return
		}
		log.WithError(err).WithField("error_code", apperrors.GetErrorCode(err)).Error("Failed to write configuration")
		h.metrics.ConfigUpsert("error")
		writeErrorResponse(w, apperrors.WrapError(err, apperrors.ErrCodeInternalError, configComponent, msgInternal))
		return
	}

	log.Info("Configuration updated")
	h.metrics.ConfigUpsert("success")
	writeJSON(w, http.StatusOK, UpdateResponse{Success: true, Data: data})
}

// singleValue returns the only value of a query parameter. Absent and
// repeated parameters are reported as missing.
func singleValue(query url.Values, name string) (string, bool) {
	values := query[name]
	if len(values) != 1 {
		return "", false
	}
	return values[0], true
}

// readUpdateBody decodes a JSON or form encoded write body. Anything that
// does not decode to an object yields an empty body.
func readUpdateBody(r *http.Request) map[string]interface{} {
	body := map[string]interface{}{}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return body
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(data))
		if err != nil {
			return body
		}
		for name, values := range form {
			if len(values) > 0 {
				body[name] = values[0]
			}
		}
		return body
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return body
	}
	if obj, ok := decoded.(map[string]interface{}); ok {
		return obj
	}
	return body
}
