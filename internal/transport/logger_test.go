package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rlmlabs/rlmreview/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultLogger(t *testing.T) {
	logger := transport.NewDefaultLogger(transport.LogLevelInfo, transport.LogFormatHuman, true)
	assert.NotNil(t, logger)
}

func TestDefaultLogger_RedactAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "full key", key: "sk-1234567890abcdef", expected: "[REDACTED-cdef]"},
		{name: "anthropic key", key: "sk-ant-1234567890abcdef", expected: "[REDACTED-cdef]"},
		{name: "short key", key: "abc", expected: "[REDACTED]"},
		{name: "empty key", key: "", expected: "[REDACTED]"},
		{name: "4 char key", key: "abcd", expected: "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := transport.NewDefaultLogger(transport.LogLevelDebug, transport.LogFormatHuman, true)
			result := logger.RedactAPIKey(tt.key)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDefaultLogger_LogRequest_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelDebug, transport.LogFormatJSON, true, &buf)
	logger.LogRequest(context.Background(), transport.RequestLog{
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		Timestamp:   time.Now(),
		PromptChars: 1000,
		APIKey:      "sk-1234567890abcdef",
	})

	output := buf.String()
	assert.Contains(t, output, "gemini")
	assert.Contains(t, output, "gemini-2.0-flash")
	assert.Contains(t, output, "1000")
	assert.Contains(t, output, "cdef")
	assert.NotContains(t, output, "sk-1234567890abcdef")
}

func TestDefaultLogger_LogRequest_InfoLevel_SkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelInfo, transport.LogFormatJSON, true, &buf)
	logger.LogRequest(context.Background(), transport.RequestLog{
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		Timestamp:   time.Now(),
		PromptChars: 1000,
		APIKey:      "sk-1234567890abcdef",
	})

	assert.Empty(t, buf.String(), "Should not log debug-level request at Info level")
}

func TestDefaultLogger_LogRequest_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelDebug, transport.LogFormatJSON, true, &buf)
	now := time.Now()
	logger.LogRequest(context.Background(), transport.RequestLog{
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		Timestamp:   now,
		PromptChars: 1000,
		APIKey:      "sk-1234567890abcdef",
	})

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	require.NotEqual(t, -1, jsonStart, "Should contain JSON")

	var logData map[string]interface{}
	err := json.Unmarshal([]byte(output[jsonStart:]), &logData)
	require.NoError(t, err)

	assert.Equal(t, "debug", logData["level"])
	assert.Equal(t, "request", logData["type"])
	assert.Equal(t, "gemini", logData["provider"])
	assert.Equal(t, "gemini-2.0-flash", logData["model"])
	assert.Equal(t, float64(1000), logData["prompt_chars"])
	assert.Equal(t, "[REDACTED-cdef]", logData["api_key"])
}

func TestDefaultLogger_LogRequest_RedactsPromptExcerpt(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelDebug, transport.LogFormatJSON, true, &buf)
	secret := strings.Repeat("a", 40)
	logger.LogRequest(context.Background(), transport.RequestLog{
		Provider:      "gemini",
		Model:         "gemini-2.0-flash",
		Timestamp:     time.Now(),
		PromptChars:   len(secret),
		PromptExcerpt: "token=" + secret,
		APIKey:        "sk-1234567890abcdef",
	})

	output := buf.String()
	assert.NotContains(t, output, secret)
	assert.Contains(t, output, "[REDACTED-KEY]")
}

func TestDefaultLogger_LogResponse_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelInfo, transport.LogFormatJSON, true, &buf)
	logger.LogResponse(context.Background(), transport.ResponseLog{
		Provider:     "gemini",
		Model:        "gemini-2.0-flash",
		Timestamp:    time.Now(),
		Duration:     2500 * time.Millisecond,
		TokensIn:     100,
		TokensOut:    50,
		Cost:         0.0015,
		StatusCode:   200,
		FinishReason: "stop",
	})

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	require.NotEqual(t, -1, jsonStart)

	var logData map[string]interface{}
	err := json.Unmarshal([]byte(output[jsonStart:]), &logData)
	require.NoError(t, err)

	assert.Equal(t, "info", logData["level"])
	assert.Equal(t, "response", logData["type"])
	assert.Equal(t, "gemini", logData["provider"])
	assert.Equal(t, float64(100), logData["tokens_in"])
	assert.Equal(t, float64(50), logData["tokens_out"])
	assert.Equal(t, 0.0015, logData["cost_usd"])
}

func TestDefaultLogger_LogError_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := transport.NewDefaultLoggerWithWriter(transport.LogLevelError, transport.LogFormatJSON, true, &buf)

	err := &transport.Error{
		Type:       transport.ErrTypeAuthentication,
		Message:    "Invalid API key",
		StatusCode: 401,
		Retryable:  false,
		Provider:   "gemini",
	}

	logger.LogError(context.Background(), transport.ErrorLog{
		Provider:   "gemini",
		Model:      "gemini-2.0-flash",
		Timestamp:  time.Now(),
		Duration:   500 * time.Millisecond,
		Error:      err,
		ErrorType:  transport.ErrTypeAuthentication,
		StatusCode: 401,
		Retryable:  false,
	})

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	require.NotEqual(t, -1, jsonStart)

	var logData map[string]interface{}
	err2 := json.Unmarshal([]byte(output[jsonStart:]), &logData)
	require.NoError(t, err2)

	assert.Equal(t, "error", logData["level"])
	assert.Equal(t, "error", logData["type"])
	assert.Equal(t, "gemini", logData["provider"])
	assert.Equal(t, float64(401), logData["status_code"])
	assert.Equal(t, false, logData["retryable"])
}

func TestDefaultLogger_NoRedaction_WhenDisabled(t *testing.T) {
	logger := transport.NewDefaultLogger(transport.LogLevelDebug, transport.LogFormatHuman, true)
	logger.SetRedaction(false)

	result := logger.RedactAPIKey("sk-1234567890abcdef")
	assert.Equal(t, "sk-1234567890abcdef", result, "Should not redact when disabled")
}
