// Package htmlsanitize strips markup from free-text fields (descriptions,
// justifications) before they are stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText removes every tag and returns trimmed text. Entities produced by
// the policy are unescaped so "Tom & Jerry" round-trips unchanged.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
