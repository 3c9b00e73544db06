package observability

import (
	"strings"
	"unicode"
)

const defaultFieldLimit = 256

// sanitizeField strips control characters and caps the length so attacker
// controlled values cannot inject log lines or bloat entries.
func sanitizeField(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute cleans a route pattern before it is attached to logs or spans.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeField(route, 180)
}

// SanitizeMethod cleans an HTTP method value.
func SanitizeMethod(method string) string {
	return sanitizeField(method, 10)
}

// SanitizeUserID caps user identifiers logged with requests.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeField(uid, 64)
}
