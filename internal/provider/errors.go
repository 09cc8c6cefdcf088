package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// MapHTTPStatus maps a code host's HTTP response to the domain error
// taxonomy. body is used only to extract a human-readable message; it is
// never required to be valid JSON.
func MapHTTPStatus(statusCode int, body []byte) *domain.Error {
	message := extractMessage(statusCode, body)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewError(domain.ErrUnauthorized, message)
	case http.StatusNotFound:
		return domain.NewError(domain.ErrNotFound, message)
	case http.StatusTooManyRequests:
		return domain.NewError(domain.ErrRateLimited, message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.NewError(domain.ErrTransport, message)
	default:
		return domain.NewError(domain.ErrTransport, message)
	}
}

type apiErrorBody struct {
	Message string `json:"message"`
}

func extractMessage(statusCode int, body []byte) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", statusCode, parsed.Message)
	}
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if preview == "" {
		return fmt.Sprintf("HTTP %d", statusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, preview)
}
