// Package normalize trims and cases user-supplied values before they reach
// the stores, so lookups and unique indexes see one canonical form.
package normalize

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses internal runs of spaces.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text trims surrounding whitespace only.
func Text(s string) string {
	return strings.TrimSpace(s)
}

// QueryParam trims a query parameter value.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// ObjectID parses a hex id. ok is false for empty or malformed input.
func ObjectID(hex string) (id primitive.ObjectID, ok bool) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// ObjectIDs parses a comma-separated list of hex ids, skipping blanks and
// rejecting the whole list if any entry is malformed.
func ObjectIDs(csv string) ([]primitive.ObjectID, bool) {
	parts := strings.Split(csv, ",")
	out := make([]primitive.ObjectID, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		id, ok := ObjectID(p)
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}
