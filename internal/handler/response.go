package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mir00r/split-router/internal/domain"
	apperrors "github.com/mir00r/split-router/internal/errors"
	"github.com/mir00r/split-router/pkg/logger"
)

// Error messages returned by the configuration endpoints.
const (
	msgMethodNotAllowed    = "Method not allowed"
	msgUnauthorized        = "Unauthorized"
	msgMissingDomain       = "Missing domain parameter"
	msgMissingFields       = "Missing required fields"
	msgNotFound            = "Configuration not found"
	msgServerConfiguration = "Server configuration error"
	msgInternal            = "Internal server error"
)

// ErrorResponse is the body of every failed configuration call. Error is
// usually a string but carries the remote payload verbatim for upstream
// failures.
type ErrorResponse struct {
	Error interface{} `json:"error"`
}

// UpdateResponse is the body of a successful configuration write.
type UpdateResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, code int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}

// configComponent names the configuration API in error values.
const configComponent = "admin_api"

func apiError(code apperrors.ErrorCode, message string) *apperrors.RouterError {
	return apperrors.NewError(code, configComponent, message)
}

// writeErrorResponse writes err with its mapped status. Upstream failures
// carry the remote payload in place of the message.
func writeErrorResponse(w http.ResponseWriter, err *apperrors.RouterError) {
	var body interface{} = err.Message
	if len(err.Payload) > 0 {
		body = err.Payload
	}
	writeJSON(w, err.HTTPStatusCode(), ErrorResponse{Error: body})
}

// requestLogger adds the request id, when present, to log.
func requestLogger(log *logger.Logger, r *http.Request) *logger.Logger {
	if rc, ok := domain.RequestContextFrom(r.Context()); ok {
		return log.WithField("request_id", rc.RequestID)
	}
	return log
}
