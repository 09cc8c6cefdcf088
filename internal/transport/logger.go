package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides structured logging for LLM API calls.
type Logger interface {
	// LogRequest logs an outgoing API request (API key redacted)
	LogRequest(ctx context.Context, req RequestLog)

	// LogResponse logs an API response with timing and token info
	LogResponse(ctx context.Context, resp ResponseLog)

	// LogError logs an API error
	LogError(ctx context.Context, err ErrorLog)
}

// RequestLog contains request information for logging.
type RequestLog struct {
	Provider      string
	Model         string
	Timestamp     time.Time
	PromptChars   int    // Character count of prompt
	PromptExcerpt string // Truncated, secret-redacted prefix of the prompt
	APIKey        string // Will be redacted to last 4 chars
}

// ResponseLog contains response information for logging.
type ResponseLog struct {
	Provider     string
	Model        string
	Timestamp    time.Time
	Duration     time.Duration
	TokensIn     int
	TokensOut    int
	Cost         float64
	StatusCode   int
	FinishReason string
}

// ErrorLog contains error information for logging.
type ErrorLog struct {
	Provider   string
	Model      string
	Timestamp  time.Time
	Duration   time.Duration
	Error      error
	ErrorType  ErrorType
	StatusCode int
	Retryable  bool
}

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
)

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.ErrorLevel
	}
}

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// DefaultLogger writes structured logs via zerolog, redacting API keys by
// default. Human format renders zerolog's ConsoleWriter; JSON format writes
// zerolog's native line-delimited JSON.
type DefaultLogger struct {
	redactKeys bool
	logger     zerolog.Logger
}

// NewDefaultLogger creates a logger with the specified level/format/redaction.
func NewDefaultLogger(level LogLevel, format LogFormat, redactKeys bool) *DefaultLogger {
	return NewDefaultLoggerWithWriter(level, format, redactKeys, os.Stderr)
}

// NewDefaultLoggerWithWriter is NewDefaultLogger with an explicit sink, used
// by tests to capture output.
func NewDefaultLoggerWithWriter(level LogLevel, format LogFormat, redactKeys bool, w io.Writer) *DefaultLogger {
	var out io.Writer = w
	if format == LogFormatHuman {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(level.zerologLevel()).With().Timestamp().Logger()
	return &DefaultLogger{redactKeys: redactKeys, logger: zl}
}

// SetRedaction enables or disables API key redaction.
func (l *DefaultLogger) SetRedaction(enabled bool) {
	l.redactKeys = enabled
}

// LogRequest logs an API request.
func (l *DefaultLogger) LogRequest(ctx context.Context, req RequestLog) {
	l.logger.Debug().
		Str("type", "request").
		Str("provider", req.Provider).
		Str("model", req.Model).
		Time("timestamp", req.Timestamp).
		Int("prompt_chars", req.PromptChars).
		Str("prompt_excerpt", SafeLogResponse(RedactSensitiveData(req.PromptExcerpt))).
		Str("api_key", l.RedactAPIKey(req.APIKey)).
		Msg("llm request sent")
}

// LogResponse logs an API response.
func (l *DefaultLogger) LogResponse(ctx context.Context, resp ResponseLog) {
	l.logger.Info().
		Str("type", "response").
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Time("timestamp", resp.Timestamp).
		Dur("duration", resp.Duration).
		Int("tokens_in", resp.TokensIn).
		Int("tokens_out", resp.TokensOut).
		Float64("cost_usd", resp.Cost).
		Int("status_code", resp.StatusCode).
		Str("finish_reason", resp.FinishReason).
		Msg("llm response received")
}

// LogError logs an API error.
func (l *DefaultLogger) LogError(ctx context.Context, err ErrorLog) {
	l.logger.Error().
		Str("type", "error").
		Str("provider", err.Provider).
		Str("model", err.Model).
		Time("timestamp", err.Timestamp).
		Dur("duration", err.Duration).
		AnErr("error", err.Error).
		Int("error_type", int(err.ErrorType)).
		Int("status_code", err.StatusCode).
		Bool("retryable", err.Retryable).
		Msg("llm call failed")
}

// RedactAPIKey shows only the last 4 characters of an API key with explicit redaction markers.
func (l *DefaultLogger) RedactAPIKey(key string) string {
	if !l.redactKeys {
		return key
	}
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("[REDACTED-%s]", key[len(key)-4:])
}
