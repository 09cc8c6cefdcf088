package llm

import (
	"context"
	"sync/atomic"
)

// Caller adapts GeminiClient to the single prompt-in/text-out shape the
// RLM controller and sandbox's llm_query capability both call through.
type Caller struct {
	client      *GeminiClient
	maxTokens   int
	temperature float64
	seed        int64
}

// NewCaller wraps client with the generation options every call in this
// session uses.
func NewCaller(client *GeminiClient, maxTokens int, temperature float64) *Caller {
	return &Caller{client: client, maxTokens: maxTokens, temperature: temperature}
}

// SetSeed requests best-effort reproducible sampling for every subsequent
// Complete call, until changed again. The rlm.Controller calls this once
// per session with a seed derived from the PR's base/head SHAs.
func (c *Caller) SetSeed(seed uint64) {
	atomic.StoreInt64(&c.seed, int64(seed&0x7fffffffffffffff))
}

// Complete issues one Gemini call and reports the tokens it spent.
func (c *Caller) Complete(ctx context.Context, prompt string) (string, int, int, error) {
	resp, err := c.client.Call(ctx, prompt, CallOptions{
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Seed:        atomic.LoadInt64(&c.seed),
	})
	if err != nil {
		return "", 0, 0, err
	}
	return resp.Text, resp.TokensIn, resp.TokensOut, nil
}
