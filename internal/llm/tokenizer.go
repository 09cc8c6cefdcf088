package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	defaultEncoder *tiktoken.Tiktoken
	encoderOnce    sync.Once
	encoderErr     error
)

func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		defaultEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return defaultEncoder, encoderErr
}

// EstimateTokens estimates a token count for text using the cl100k_base
// encoding. Gemini doesn't expose this tokenizer natively, but it is a
// reasonable cross-provider approximation for budgeting purposes, and the
// actual prompt/completion counts Gemini reports are used wherever exact
// accounting matters (transport.ResponseLog, cost calculation).
func EstimateTokens(text string) int {
	enc, err := getEncoder()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
