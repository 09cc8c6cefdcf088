package transport

import (
	"fmt"
	"regexp"
)

var secretPattern = regexp.MustCompile(`[a-zA-Z0-9_-]{32,}`)

const (
	// MaxLoggedResponseLength is the maximum length of response text to include in logs.
	// Responses longer than this are truncated to prevent logging sensitive data.
	MaxLoggedResponseLength = 200
)

// TruncateForLogging safely truncates a response string for logging purposes.
// This prevents logging of potentially sensitive user data (source code, secrets, etc.)
// to log aggregators while still providing enough context for debugging.
//
// Returns the first MaxLoggedResponseLength characters plus a truncation indicator if truncated.
func TruncateForLogging(response string) string {
	if len(response) <= MaxLoggedResponseLength {
		return response
	}
	return response[:MaxLoggedResponseLength] + fmt.Sprintf("... [truncated, total length=%d bytes]", len(response))
}

// RedactSensitiveData replaces runs of 32+ alphanumeric characters (the
// shape of an API key or token) with a placeholder. A heuristic, not a
// comprehensive secret scanner.
func RedactSensitiveData(text string) string {
	return secretPattern.ReplaceAllString(text, "[REDACTED-KEY]")
}

// SafeLogResponse combines truncation for safe logging.
// Use this function when logging LLM responses that may contain user data.
func SafeLogResponse(response string) string {
	return TruncateForLogging(response)
}
