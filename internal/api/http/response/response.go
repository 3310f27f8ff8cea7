// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
)

const internalMessage = "internal server error"

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    apperr.Kind `json:"code"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

// Writer renders successes and failures into the envelope.
type Writer struct {
	logger      *logger.Logger
	development bool
}

// NewWriter creates a Writer. In development mode internal error causes
// are returned to the client instead of a generic message.
func NewWriter(logger *logger.Logger, development bool) *Writer {
	return &Writer{logger: logger, development: development}
}

// JSON writes data wrapped in a success envelope.
func (wr *Writer) JSON(w http.ResponseWriter, status int, data any) {
	wr.write(w, status, envelope{Success: true, Data: data})
}

// NoContent writes an empty 204 response.
func (wr *Writer) NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// NotModified writes an empty 304 response.
func (wr *Writer) NotModified(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotModified)
}

// Error maps err onto its status code and writes a failure envelope.
func (wr *Writer) Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	status := appErr.HTTPStatus()

	if status >= http.StatusInternalServerError {
		wr.logger.Error("HTTP request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err.Error())
	} else {
		wr.logger.Debug("HTTP request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err.Error())
	}

	body := &errorBody{
		Code:    appErr.Kind,
		Message: appErr.Message,
		Details: appErr.Details,
	}
	if appErr.Kind == apperr.KindInternal {
		body.Message = internalMessage
		body.Details = nil
		if wr.development && appErr.Err != nil {
			body.Message = appErr.Err.Error()
		}
	}

	wr.write(w, status, envelope{Success: false, Error: body})
}

func (wr *Writer) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		wr.logger.Error("HTTP: failed to encode response", "error", err.Error())
	}
}
