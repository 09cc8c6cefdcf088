package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps err onto an HTTP status using domain.ErrorCode when
// available: the response carries a stable string code and a human
// message, never a stack trace.
func writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		writeJSON(w, statusFor(derr.Code), errorResponse{Error: derr.Message, Code: string(derr.Code)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrUrlInvalid, domain.ErrValidationError:
		return http.StatusBadRequest
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrBinaryTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.ErrDeadline, domain.ErrSandboxTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
