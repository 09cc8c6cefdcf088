// Package review implements the Review Pipeline (C5): a canonical
// review question driven through the RLM Controller, with citation
// validation and repair applied to the terminal answer.
package review

// reviewQuestion is the fixed instruction handed to rlm.Controller.Ask for
// the canonical review operation, kept short because the PR title/diff/
// capabilities are already supplied by the controller's own system prompt
// (internal/rlm.systemTemplate); this question only has to pin down the
// output contract.
const reviewQuestion = `You are reviewing this pull request for bugs, security issues, and
maintainability problems. Use fetch_file and search to read any code you
need beyond the diff before forming conclusions.

When you are done, call answer with a single markdown block containing
exactly one fenced ` + "```json" + ` code block shaped:

{
  "issues": [
    {
      "title": "short summary",
      "severity": "low|medium|high|critical",
      "category": "bug|investigation|informational",
      "explanationMarkdown": "what's wrong and why it matters, under 2 KiB",
      "citations": [
        {"path": "path/to/file.go", "side": "additions|deletions|unified", "startLine": 10, "endLine": 12, "label": "optional"}
      ],
      "fixSuggestions": "optional actionable fix",
      "testsToAdd": "optional test you'd add"
    }
  ]
}

Rules:
- Every issue has at least one citation pointing at a changed file and line
  range from the diff.
- Use "category": "bug" for defects, "investigation" for things you are not
  certain about but think warrant a human look, "informational" for
  observations that aren't actionable defects.
- If you find nothing worth reporting, answer with {"issues": []}.
- Do not invent files or line numbers that are not in the diff.`
