package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces buyer-supplied text in log output.
const RedactedValue = "[REDACTED]"

// plainKeys are identifiers and lifecycle labels. Anything else an escrow
// carries, such as contact details or agreement documents, is masked.
var plainKeys = map[string]bool{
	"escrowid": true,
	"landid":   true,
	"state":    true,
	"method":   true,
	"event":    true,
	"reason":   true,
	"error":    true,
}

// MaskField builds a string attribute for key, masking a non-blank value
// unless key names an identifier.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || plainKeys[strings.ToLower(strings.TrimSpace(key))] {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
