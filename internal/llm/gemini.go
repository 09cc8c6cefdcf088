// Package llm implements the single-shot LLM driver the RLM Controller
// calls once per iteration and the sandbox's llm_query capability calls
// once per nested request. It targets the Gemini generateContent API and
// maps failures onto the domain error taxonomy instead of a driver-local
// error type.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rlmlabs/rlmreview/internal/config"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/transport"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultTimeout = 60 * time.Second
)

// CallOptions configures a single generateContent call.
type CallOptions struct {
	Temperature float64
	MaxTokens   int

	// Seed requests best-effort reproducible sampling (Gemini does not
	// guarantee determinism across model versions). 0 means unset.
	Seed int64
}

// Response is one completed LLM call, text plus accounting.
type Response struct {
	Text         string
	TokensIn     int
	TokensOut    int
	FinishReason string
	Cost         float64
}

// GeminiClient calls Google's Gemini generateContent API.
type GeminiClient struct {
	apiKey    string
	model     string
	baseURL   string
	retryConf transport.RetryConfig
	client    *http.Client

	logger  transport.Logger
	metrics transport.Metrics
	pricing transport.Pricing
}

// NewGeminiClient builds a client from the resolved provider/HTTP config.
func NewGeminiClient(apiKey, model string, providerCfg config.ProviderConfig, httpCfg config.HTTPConfig) *GeminiClient {
	timeout := transport.ParseTimeout(providerCfg.Timeout, httpCfg.Timeout, defaultTimeout)
	return &GeminiClient{
		apiKey:    apiKey,
		model:     model,
		baseURL:   defaultBaseURL,
		retryConf: transport.BuildRetryConfig(providerCfg, httpCfg),
		client:    &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the API host, for tests.
func (c *GeminiClient) SetBaseURL(url string) { c.baseURL = url }

// SetLogger attaches a request/response logger.
func (c *GeminiClient) SetLogger(logger transport.Logger) { c.logger = logger }

// SetMetrics attaches an aggregate metrics sink.
func (c *GeminiClient) SetMetrics(metrics transport.Metrics) { c.metrics = metrics }

// SetPricing attaches a cost calculator.
func (c *GeminiClient) SetPricing(pricing transport.Pricing) { c.pricing = pricing }

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []safetySetting   `json:"safetySettings,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	CandidateCount  int     `json:"candidateCount,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateContentResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call issues one generateContent request, retrying transport failures with
// ±25%-jitter backoff before mapping any surviving failure onto the domain
// error taxonomy.
func (c *GeminiClient) Call(ctx context.Context, prompt string, opts CallOptions) (Response, error) {
	start := time.Now()
	if c.logger != nil {
		c.logger.LogRequest(ctx, transport.RequestLog{
			Provider: "gemini", Model: c.model, Timestamp: start,
			PromptChars: len(prompt), PromptExcerpt: prompt, APIKey: c.apiKey,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordRequest("gemini", c.model)
	}

	reqBody := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		SafetySettings: []safetySetting{
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
		},
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 || opts.Seed != 0 {
		reqBody.GenerationConfig = &generationConfig{CandidateCount: 1}
		if opts.Temperature > 0 {
			reqBody.GenerationConfig.Temperature = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			reqBody.GenerationConfig.MaxOutputTokens = opts.MaxTokens
		}
		if opts.Seed != 0 {
			reqBody.GenerationConfig.Seed = &opts.Seed
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, domain.Wrap(domain.ErrParseError, "marshal gemini request", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var httpResp *http.Response
	err = transport.RetryWithBackoff(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if reqErr != nil {
			return transport.NewTimeoutError("gemini", reqErr.Error())
		}
		req.Header.Set("Content-Type", "application/json")

		resp, callErr := c.client.Do(req)
		if callErr != nil {
			return transport.NewTimeoutError("gemini", callErr.Error())
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return mapErrorResponse(resp.StatusCode, body)
		}
		httpResp = resp
		return nil
	}, c.retryConf)

	duration := time.Since(start)
	if err != nil {
		c.logFailure(ctx, duration, err)
		return Response{}, toDomainError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, domain.Wrap(domain.ErrTransport, "read gemini response", err)
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, domain.Wrap(domain.ErrParseError, "decode gemini response", err)
	}
	if len(parsed.Candidates) == 0 {
		return Response{}, domain.NewError(domain.ErrParseError, "gemini returned no candidates")
	}

	cand := parsed.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return Response{}, domain.NewError(domain.ErrValidationError, "content blocked by safety filters")
	}

	var textParts []string
	for _, p := range cand.Content.Parts {
		textParts = append(textParts, p.Text)
	}

	resp := Response{
		Text:         strings.Join(textParts, ""),
		TokensIn:     parsed.UsageMetadata.PromptTokenCount,
		TokensOut:    parsed.UsageMetadata.CandidatesTokenCount,
		FinishReason: cand.FinishReason,
	}
	if c.pricing != nil {
		resp.Cost = c.pricing.GetCost("gemini", c.model, resp.TokensIn, resp.TokensOut)
	}

	if c.logger != nil {
		c.logger.LogResponse(ctx, transport.ResponseLog{
			Provider: "gemini", Model: c.model, Timestamp: time.Now(), Duration: duration,
			TokensIn: resp.TokensIn, TokensOut: resp.TokensOut, Cost: resp.Cost,
			StatusCode: 200, FinishReason: resp.FinishReason,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordDuration("gemini", c.model, duration)
		c.metrics.RecordTokens("gemini", c.model, resp.TokensIn, resp.TokensOut)
		c.metrics.RecordCost("gemini", c.model, resp.Cost)
	}
	return resp, nil
}

func (c *GeminiClient) logFailure(ctx context.Context, duration time.Duration, err error) {
	var transportErr *transport.Error
	if !errors.As(err, &transportErr) {
		return
	}
	if c.logger != nil {
		c.logger.LogError(ctx, transport.ErrorLog{
			Provider: "gemini", Model: c.model, Timestamp: time.Now(), Duration: duration,
			Error: err, ErrorType: transportErr.Type, StatusCode: transportErr.StatusCode,
			Retryable: transportErr.Retryable,
		})
	}
	if c.metrics != nil {
		c.metrics.RecordError("gemini", c.model, transportErr.Type)
	}
}

func mapErrorResponse(statusCode int, body []byte) *transport.Error {
	var parsed errorResponse
	message := fmt.Sprintf("HTTP %d", statusCode)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return transport.NewAuthenticationError("gemini", message)
	case http.StatusTooManyRequests:
		return transport.NewRateLimitError("gemini", message)
	case http.StatusBadRequest:
		return transport.NewInvalidRequestError("gemini", message)
	case http.StatusNotFound:
		return transport.NewModelNotFoundError("gemini", message)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		return transport.NewServiceUnavailableError("gemini", message)
	default:
		return &transport.Error{Type: transport.ErrTypeUnknown, Message: message, StatusCode: statusCode, Provider: "gemini"}
	}
}

// toDomainError lowers a transport.Error onto the domain error taxonomy
// that crosses into the RLM controller and sandbox; anything else is a
// bare transport failure.
func toDomainError(err error) error {
	var transportErr *transport.Error
	if !errors.As(err, &transportErr) {
		return domain.Wrap(domain.ErrTransport, err.Error(), err)
	}
	switch transportErr.Type {
	case transport.ErrTypeAuthentication:
		return domain.Wrap(domain.ErrUnauthorized, transportErr.Message, transportErr)
	case transport.ErrTypeRateLimit:
		return domain.Wrap(domain.ErrRateLimited, transportErr.Message, transportErr)
	case transport.ErrTypeInvalidRequest:
		return domain.Wrap(domain.ErrValidationError, transportErr.Message, transportErr)
	case transport.ErrTypeTimeout:
		return domain.Wrap(domain.ErrDeadline, transportErr.Message, transportErr)
	default:
		return domain.Wrap(domain.ErrTransport, transportErr.Message, transportErr)
	}
}
