// Package shared holds request helpers used by the JSON feature handlers.
package shared

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ObjectIDParam parses the chi URL parameter name as an ObjectID. A
// malformed id can never match a record, so it is reported as NotFound.
func ObjectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, name)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("request."+name, "no such "+name).With(name, raw)
	}
	return id, nil
}

// IntQuery parses the query parameter name as a non-negative integer.
// A missing parameter yields def.
func IntQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("request."+name, name+" must be a non-negative integer")
	}
	return n, nil
}
