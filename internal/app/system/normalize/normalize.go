// internal/app/system/normalize/normalize.go

// Package normalize provides canonicalization for user-supplied input
// before it is persisted. Display and group names pass through a strict
// HTML sanitizer since they are rendered verbatim by clients.
package normalize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict strips all HTML from user-supplied strings.
var strict = bluemonday.StrictPolicy()

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims and sanitizes a display or group name. Case is preserved.
func Name(s string) string {
	// Sanitize entity-escapes, so unescape to keep plain text like
	// "Smith & Sons" round-trippable.
	return html.UnescapeString(strict.Sanitize(strings.TrimSpace(s)))
}

// JoinCode uppercases and trims a join code as typed by a user.
func JoinCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
