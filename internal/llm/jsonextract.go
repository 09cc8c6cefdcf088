package llm

import (
	"regexp"
	"strings"
)

// jsonBlockRegex matches from the first ```json (or ```) fence to the LAST
// closing fence in the text, not the first. Greedy matching is needed
// because review JSON can legitimately contain nested ``` fences inside a
// string value (a suggested code snippet), and a non-greedy match would
// stop at that inner fence instead of the one that actually closes the
// JSON block.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*)```")

// ExtractJSONFromMarkdown extracts JSON from a markdown code block,
// assuming the model returned a single fenced block. If no fence is found
// the input is returned trimmed, on the assumption it is already raw JSON.
func ExtractJSONFromMarkdown(text string) string {
	if matches := jsonBlockRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(text)
}
