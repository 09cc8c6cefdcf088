package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/rlmlabs/rlmreview/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestExtractJSONFromMarkdown_JSONCodeBlock(t *testing.T) {
	markdown := "```json\n{\"issues\": []}\n```"
	result := llm.ExtractJSONFromMarkdown(markdown)

	assert.Equal(t, `{"issues": []}`, result)
}

func TestExtractJSONFromMarkdown_PlainCodeBlock(t *testing.T) {
	markdown := "```\n{\"issues\": []}\n```"
	result := llm.ExtractJSONFromMarkdown(markdown)

	assert.Equal(t, `{"issues": []}`, result)
}

func TestExtractJSONFromMarkdown_RawJSON(t *testing.T) {
	rawJSON := `{"issues": []}`
	result := llm.ExtractJSONFromMarkdown(rawJSON)

	assert.Equal(t, rawJSON, result)
}

func TestExtractJSONFromMarkdown_EmptyString(t *testing.T) {
	assert.Equal(t, "", llm.ExtractJSONFromMarkdown(""))
}

func TestExtractJSONFromMarkdown_NoJSON(t *testing.T) {
	plainText := "This is just plain text without JSON"
	assert.Equal(t, plainText, llm.ExtractJSONFromMarkdown(plainText))
}

func TestExtractJSONFromMarkdown_MultipleCodeBlocks(t *testing.T) {
	markdown := "```json\n{\"first\": true}\n```\nSome text\n```json\n{\"second\": true}\n```"
	result := llm.ExtractJSONFromMarkdown(markdown)

	expected := "{\"first\": true}\n```\nSome text\n```json\n{\"second\": true}"
	assert.Equal(t, expected, result)
}

func TestExtractJSONFromMarkdown_WithWhitespace(t *testing.T) {
	markdown := "```json\n\n  {\"issues\": []}  \n\n```"
	assert.Equal(t, `{"issues": []}`, llm.ExtractJSONFromMarkdown(markdown))
}

func TestExtractJSONFromMarkdown_NestedBackticks(t *testing.T) {
	markdown := "```json\n{\"code\": \"`value`\"}\n```"
	expected := `{"code": "` + "`value`" + `"}`
	assert.Equal(t, expected, llm.ExtractJSONFromMarkdown(markdown))
}

func TestExtractJSONFromMarkdown_NestedCodeBlocks(t *testing.T) {
	// The real scenario this guards against: a review issue's fix
	// suggestion embeds its own ```go fence, which must not be mistaken
	// for the end of the outer JSON block.
	markdown := "```json\n{\n  \"issues\": [\n    {\n      \"fixSuggestions\": \"Use this:\\n\\n```go\\nfunc main() {}\\n```\"\n    }\n  ]\n}\n```"
	result := llm.ExtractJSONFromMarkdown(markdown)

	var parsed map[string]interface{}
	err := json.Unmarshal([]byte(result), &parsed)
	assert.NoError(t, err, "extracted content should be valid JSON")
}
