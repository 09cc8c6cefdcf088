package review

import (
	"encoding/json"
	"fmt"

	"github.com/rlmlabs/rlmreview/internal/diff"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/llm"
)

const maxExplanationBytes = 2 * 1024 // explanation_markdown is capped at 2 KiB

// rawReport is the wire shape the model is instructed to emit: a single
// fenced json block containing {"issues": [...]}. Its field names already
// match domain.ReviewIssue/DiffCitation's json tags, so it unmarshals
// straight into the domain types; validation and repair happen afterward.
type rawReport struct {
	Issues []domain.ReviewIssue `json:"issues"`
}

// parseAnswer extracts the first fenced json block from the terminal
// answer's markdown blocks and decodes it into a rawReport.
func parseAnswer(blocks []domain.AnswerBlock) (rawReport, error) {
	for _, b := range blocks {
		if b.Type != domain.BlockMarkdown {
			continue
		}
		candidate := llm.ExtractJSONFromMarkdown(b.Content)
		if candidate == "" {
			continue
		}
		var report rawReport
		if err := json.Unmarshal([]byte(candidate), &report); err != nil {
			continue
		}
		return report, nil
	}
	return rawReport{}, fmt.Errorf("no json issues block found in answer")
}

// buildReport validates and repairs every issue's citations against pr,
// dropping issues that have no valid citation left after repair. Partial
// success is not an error; dropped count is returned on the report.
func buildReport(pr domain.PRInfo, raw rawReport) domain.ReviewReport {
	var out domain.ReviewReport
	for _, issue := range raw.Issues {
		issue.Category = normalizeCategory(issue.Category)
		issue.Severity = normalizeSeverity(issue.Severity)
		issue.ExplanationMD = truncateBytes(issue.ExplanationMD, maxExplanationBytes)

		repaired := repairCitations(pr, issue.Citations)
		if len(repaired) == 0 {
			out.Dropped++
			continue
		}
		issue.Citations = repaired
		out.Issues = append(out.Issues, issue)
	}
	return out
}

// normalizeCategory coerces any value outside the closed set to
// informational: models sometimes use "investigation" and "informational"
// interchangeably, so anything unrecognized is treated as informational on
// ingest rather than rejected.
func normalizeCategory(c domain.Category) domain.Category {
	switch c {
	case domain.CategoryBug, domain.CategoryInvestigation, domain.CategoryInformational:
		return c
	default:
		return domain.CategoryInformational
	}
}

// normalizeSeverity coerces any value outside the closed set to medium,
// the middle of the enumerated range, rather than silently keeping an
// arbitrary model-supplied string.
func normalizeSeverity(s domain.Severity) domain.Severity {
	switch s {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
		return s
	default:
		return domain.SeverityMedium
	}
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// repairCitations validates each citation against pr (path in
// pr_info.files, 1 <= start_line <= end_line, lines exist on the indicated
// side), repairing side=="unified" citations by line-range inference and
// dropping whatever remains invalid.
func repairCitations(pr domain.PRInfo, citations []domain.DiffCitation) []domain.DiffCitation {
	var out []domain.DiffCitation
	for _, c := range citations {
		if c.StartLine > c.EndLine {
			c.StartLine, c.EndLine = c.EndLine, c.StartLine
		}
		if c.StartLine < 1 {
			continue
		}

		file, ok := pr.File(c.Path)
		if !ok {
			continue
		}
		parsed, err := diff.Parse(file.Patch)
		if err != nil {
			continue
		}

		if c.Side == domain.SideUnified {
			repaired, ok := inferSide(parsed, c)
			if !ok {
				continue
			}
			c = repaired
		}

		if !sideHasRange(parsed, c.Side, c.StartLine, c.EndLine) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// inferSide implements the unified-side repair rule: prefer additions if
// start_line <= new_line_count, else deletions if start_line <=
// old_line_count, else the citation is dropped (B3).
func inferSide(parsed diff.ParsedDiff, c domain.DiffCitation) (domain.DiffCitation, bool) {
	newCount := parsed.NewLineCount()
	oldCount := parsed.OldLineCount()

	switch {
	case c.StartLine <= newCount:
		c.Side = domain.SideAdditions
	case c.StartLine <= oldCount:
		c.Side = domain.SideDeletions
	default:
		return domain.DiffCitation{}, false
	}
	return c, true
}

func sideHasRange(parsed diff.ParsedDiff, side domain.DiffSide, start, end int) bool {
	switch side {
	case domain.SideAdditions:
		return parsed.HasAdditionsRange(start, end)
	case domain.SideDeletions:
		return parsed.HasDeletionsRange(start, end)
	default:
		return false
	}
}
