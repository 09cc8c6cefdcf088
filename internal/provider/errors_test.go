package provider_test

import (
	"testing"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/stretchr/testify/assert"
)

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       []byte
		wantCode   domain.ErrorCode
	}{
		{name: "unauthorized", statusCode: 401, body: []byte(`{"message":"Bad credentials"}`), wantCode: domain.ErrUnauthorized},
		{name: "forbidden", statusCode: 403, body: []byte(`{"message":"rate limit"}`), wantCode: domain.ErrUnauthorized},
		{name: "not found", statusCode: 404, body: []byte(`{"message":"Not Found"}`), wantCode: domain.ErrNotFound},
		{name: "too many requests", statusCode: 429, body: []byte(`{"message":"secondary rate limit"}`), wantCode: domain.ErrRateLimited},
		{name: "internal server error", statusCode: 500, body: nil, wantCode: domain.ErrTransport},
		{name: "bad gateway", statusCode: 502, body: nil, wantCode: domain.ErrTransport},
		{name: "service unavailable", statusCode: 503, body: nil, wantCode: domain.ErrTransport},
		{name: "unmapped status falls back to transport", statusCode: 418, body: nil, wantCode: domain.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := provider.MapHTTPStatus(tt.statusCode, tt.body)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}

func TestMapHTTPStatus_MessageFromJSONBody(t *testing.T) {
	err := provider.MapHTTPStatus(404, []byte(`{"message":"widget not found"}`))
	assert.Contains(t, err.Message, "widget not found")
	assert.Contains(t, err.Message, "404")
}

func TestMapHTTPStatus_NonJSONBodyTruncated(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := provider.MapHTTPStatus(500, long)
	assert.Contains(t, err.Message, "...")
	assert.LessOrEqual(t, len(err.Message), 220)
}

func TestMapHTTPStatus_EmptyBody(t *testing.T) {
	err := provider.MapHTTPStatus(500, nil)
	assert.Equal(t, "HTTP 500", err.Message)
}
