// Package rlm implements the RLM Controller (C4): the bounded iterative
// loop that interleaves LLM reasoning, code synthesis, sandboxed execution,
// and observation until the model emits a terminal answer.
package rlm

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// promptData holds everything the system template can render: a
// capability-oriented prompt that covers any question, not a single fixed
// review prompt.
type promptData struct {
	Title        string
	BaseRef      string
	HeadRef      string
	Diff         string
	Conversation []conversationTurn
	Transcript   []transcriptEntry
	Question     string
	Selection    string
	Forced       bool
}

type conversationTurn struct {
	Role string
	Text string
}

type transcriptEntry struct {
	Index     int
	Reasoning string
	Code      string
	Output    string
	Error     string
}

// systemTemplate describes the four JS capability signatures and the
// required {"reasoning":..., "code":...} output shape. The diff appears
// before background context since models weight earlier context more
// heavily (primacy bias).
const systemTemplate = `You are an expert software engineer investigating a pull request with a
recursive reasoning loop: each turn you emit JSON describing your reasoning
and a JavaScript program to run in a sandbox, observe its output, and
either continue reasoning or answer.

## Pull Request

Title: {{.Title}}
Base: {{.BaseRef}}  Head: {{.HeadRef}}

{{.Diff}}

## Sandbox capabilities (JavaScript, no ambient network or filesystem access)

- fetch_file(path, sha) -> string: text content of path at sha (defaults to
  the PR head commit when sha is omitted). Binary files over the size cap
  are rejected.
- search(query, sha) -> [{path, line, snippet}]: ranked text search over
  the repository tree at sha.
- llm_query(prompt, system) -> string: a single-shot nested model call with
  no further tool access. At most 4 per iteration.
- answer(blocks) -> void: blocks is an array of {type: "markdown"|"code",
  content, language?}. Calling this ends the session; any code after it is
  ignored.

Use print(...) to emit intermediate output you want to see in the next
turn's observation.

{{if .Conversation}}
## Prior conversation
{{range .Conversation}}
{{.Role}}: {{.Text}}
{{end}}
{{end}}

{{if .Transcript}}
## Prior iterations
{{range .Transcript}}
[iter {{.Index}}]
reasoning: {{.Reasoning}}
code: {{.Code}}
{{if .Output}}observation: {{.Output}}{{end}}
{{if .Error}}error: {{.Error}}{{end}}
{{end}}
{{end}}

## Question
{{.Question}}
{{if .Selection}}Focus on: {{.Selection}}{{end}}

## Required output

Respond with a single JSON object, nothing else:

` + "```" + `json
{"reasoning": "what you are about to do and why", "code": "the JavaScript to run this turn"}
` + "```" + `

{{if .Forced}}Your iteration budget is exhausted. Do not investigate
further: this turn's code must call answer([...]) with your best-effort
findings based on the transcript above.{{else}}If you already have enough
information to answer, have your code call answer([...]) instead of
continuing to investigate.{{end}}
`

// Builder renders the system prompt for one iteration.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder compiles the system template once for reuse across sessions.
func NewBuilder() (*Builder, error) {
	tmpl, err := template.New("rlm-system").Parse(systemTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse rlm system template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// Render builds the prompt for the next iteration of session, given the
// question, prior conversation turns, and an optional diff-anchored
// selection.
func (b *Builder) Render(session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection) (string, error) {
	return b.render(session, question, conversation, selection, false)
}

// RenderForced builds the prompt for a final, mandatory iteration issued
// once the session's iteration budget is exhausted: the instruction to
// continue investigating is replaced with an instruction to answer
// immediately from whatever the transcript already contains.
func (b *Builder) RenderForced(session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection) (string, error) {
	return b.render(session, question, conversation, selection, true)
}

func (b *Builder) render(session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection, forced bool) (string, error) {
	data := promptData{
		Title:      session.PRInfo.Title,
		BaseRef:    session.PRInfo.BaseRef,
		HeadRef:    session.PRInfo.HeadRef,
		Diff:       formatDiff(session.PRInfo),
		Question:   question,
		Transcript: formatTranscript(session.Transcript),
		Forced:     forced,
	}
	if selection != nil {
		data.Selection = fmt.Sprintf("%s lines %d-%d (%s)", selection.Path, selection.StartLine, selection.EndLine, selection.Side)
	}
	for i, turn := range conversation {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		data.Conversation = append(data.Conversation, conversationTurn{Role: role, Text: turn})
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render rlm prompt: %w", err)
	}
	return buf.String(), nil
}

func formatTranscript(transcript []domain.Iteration) []transcriptEntry {
	entries := make([]transcriptEntry, 0, len(transcript))
	for _, it := range transcript {
		entries = append(entries, transcriptEntry{
			Index: it.Index, Reasoning: it.Reasoning, Code: it.Code,
			Output: it.Output, Error: it.Error,
		})
	}
	return entries
}

// formatDiff renders PRInfo.Files as a unified-diff listing, sorted so
// source files are reviewed before documentation (primacy bias).
func formatDiff(pr domain.PRInfo) string {
	if len(pr.Files) == 0 {
		return "(no file changes)"
	}

	files := make([]domain.PRFile, len(pr.Files))
	copy(files, pr.Files)
	sort.Slice(files, func(i, j int) bool {
		return filePriority(files[i].Path) < filePriority(files[j].Path)
	})

	var buf strings.Builder
	for _, f := range files {
		fmt.Fprintf(&buf, "File: %s (%s)\n", f.Path, f.Status)
		if f.Patch != "" {
			buf.WriteString(f.Patch)
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

func filePriority(path string) int {
	lower := strings.ToLower(path)
	sourceExt := []string{".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".rs", ".java", ".c", ".cpp", ".rb", ".php"}
	for _, ext := range sourceExt {
		if strings.HasSuffix(lower, ext) {
			return 0
		}
	}
	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
		return 1
	}
	configExt := []string{".yaml", ".yml", ".json", ".toml", ".ini"}
	for _, ext := range configExt {
		if strings.HasSuffix(lower, ext) {
			return 2
		}
	}
	if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".rst") || strings.Contains(lower, "docs/") {
		return 4
	}
	return 3
}
