// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/aegisgate/aegisgate/types"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteRaw writes a pre-serialized JSON body verbatim. Used for upstream
// pass-through and pipeline error payloads.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteErrorPayload writes an OpenAI-style error envelope.
func WriteErrorPayload(w http.ResponseWriter, status int, payload types.ErrorPayload, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("request rejected",
			zap.String("code", string(payload.Error.Code)),
			zap.String("message", payload.Error.Message),
			zap.Int("status", status),
		)
	}
	WriteJSON(w, status, payload)
}

// DecodeJSONBody strictly decodes a JSON request body. Unknown fields are
// rejected: the request schema is closed so unexpected structure cannot
// bypass the guardrails.
func DecodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return types.NewError(types.CodeValidationError, "request body is empty").WithHTTPStatus(http.StatusBadRequest)
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return types.NewError(types.CodeValidationError, "Invalid request payload.").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// ResponseWriter wraps http.ResponseWriter to capture the status code.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter creates a status-capturing response writer.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader captures the status code on first write.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write marks the response as written.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
