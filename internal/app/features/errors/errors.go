// Package errors writes JSON responses and maps engine errors to HTTP
// statuses.
//
// Body shape for every failure:
//
//	{"error":{"kind":"conflict","message":"...","incident_id":"..."}}
//
// incident_id is present only on server errors; the same id is logged.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	IncidentID string `json:"incident_id,omitempty"`
}

// WriteJSON writes v as the JSON response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Writer turns errors into responses, logging server-side failures.
type Writer struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewWriter builds a Writer. m may be nil.
func NewWriter(logger *zap.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{log: logger, metrics: m}
}

// Error writes err. Client errors carry the error's own message. Anything
// else is logged with a fresh incident id; classified server errors keep
// their caller-safe message, unclassified ones are reported generically.
func (e *Writer) Error(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if stderrors.As(err, &ae) && ae.Kind != apperr.KindPersistence {
		e.metrics.Error(string(ae.Kind))
		WriteJSON(w, StatusFor(ae.Kind), errorBody{Error: errorDetail{
			Kind:    string(ae.Kind),
			Message: ae.Message,
		}})
		return
	}

	kind, status, msg := "internal", http.StatusInternalServerError, "something went wrong"
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		kind, status, msg = "timeout", http.StatusGatewayTimeout, "the request took too long"
	case ae != nil:
		kind = string(ae.Kind)
		if ae.Message != "" {
			msg = ae.Message
		}
	}

	id := uuid.NewString()
	fields := []zap.Field{
		zap.String("incident_id", id),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if ae != nil {
		fields = append(fields, zap.String("operation", ae.Op))
		for k, v := range ae.Fields {
			fields = append(fields, zap.String(k, v))
		}
	}
	e.log.Error("request failed", fields...)
	e.metrics.Error(kind)

	WriteJSON(w, status, errorBody{Error: errorDetail{
		Kind:       kind,
		Message:    msg,
		IncidentID: id,
	}})
}

// BadRequest writes a validation error with msg.
func (e *Writer) BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	e.Error(w, r, apperr.Validation("http", msg))
}

// Unauthenticated writes 401 for a request without a usable session.
func Unauthenticated(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
		Kind:    "unauthenticated",
		Message: "sign in required",
	}})
}

// DecodeJSON reads r's body into dst. Unknown fields, trailing data and
// oversized bodies are validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return apperr.Validation("http", "request body is required")
		}
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return apperr.Validation("http", "request body is too large")
		}
		return apperr.Validation("http", "request body is not valid JSON: "+err.Error())
	}
	if dec.More() {
		return apperr.Validation("http", "request body must hold a single JSON object")
	}
	return nil
}
