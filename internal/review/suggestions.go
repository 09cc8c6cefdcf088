package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rlmlabs/rlmreview/internal/llm"
)

// suggestionsPrompt asks for a small, strictly bounded list of follow-up
// questions a reviewer would plausibly ask next, given the conversation so
// far: one prompt in, one text answer out, no tool access.
const suggestionsPrompt = `Given the conversation so far about this pull request, suggest up to three
short follow-up questions a reviewer would plausibly ask next. Respond with
exactly one JSON object: {"suggestions": ["question one", "question two"]}.
Return fewer than three entries if you can't think of that many good ones,
and never invent a question unrelated to the conversation.

Conversation:
%s`

// maxSuggestions bounds POST /api/suggestions's response size regardless of
// what the model returns.
const maxSuggestions = 3

// Suggester implements POST /api/suggestions: given the last answer and
// conversation, ask the LLM once for short follow-up questions.
type Suggester struct {
	caller rlmCaller
}

// rlmCaller mirrors rlm.Caller's shape without importing internal/rlm, the
// same structural-typing trick internal/llm.Caller uses to avoid a cycle
// back from internal/rlm to internal/llm.
type rlmCaller interface {
	Complete(ctx context.Context, prompt string) (text string, tokensIn, tokensOut int, err error)
}

// NewSuggester wraps caller for suggestion generation.
func NewSuggester(caller rlmCaller) *Suggester {
	return &Suggester{caller: caller}
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggest returns up to maxSuggestions follow-up questions for the given
// conversation transcript (oldest first).
func (s *Suggester) Suggest(ctx context.Context, conversation []string) ([]string, error) {
	prompt := fmt.Sprintf(suggestionsPrompt, strings.Join(conversation, "\n---\n"))

	text, _, _, err := s.caller.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed suggestionsResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSONFromMarkdown(text)), &parsed); err != nil {
		return nil, fmt.Errorf("decode suggestions response: %w", err)
	}

	if len(parsed.Suggestions) > maxSuggestions {
		parsed.Suggestions = parsed.Suggestions[:maxSuggestions]
	}
	return parsed.Suggestions, nil
}
