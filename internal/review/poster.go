package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/provider/github"
)

// Poster posts a ReviewReport back to GitHub as a native pull request
// review with inline comments. This is additive: it never replaces the
// /api/diff/review JSON contract, which remains the primary output of
// Pipeline.Review.
type Poster struct {
	gateway *provider.Gateway
}

// NewPoster wraps gateway for review posting.
func NewPoster(gateway *provider.Gateway) *Poster {
	return &Poster{gateway: gateway}
}

// PostResult summarizes what was posted.
type PostResult struct {
	ReviewID       int64
	HTMLURL        string
	Event          github.ReviewEvent
	CommentsPosted int
}

// Post submits report against pr as a single review. commitSHA is usually
// pr.HeadSHA.
func (p *Poster) Post(ctx context.Context, pr domain.PRInfo, report domain.ReviewReport, commitSHA string) (PostResult, error) {
	event := determineEvent(report.Issues)
	comments := buildComments(report.Issues)
	body := summaryBody(report)

	id, url, err := p.gateway.PostReview(ctx, pr.Repo, pr.Number, commitSHA, body, event, comments)
	if err != nil {
		return PostResult{}, err
	}
	return PostResult{ReviewID: id, HTMLURL: url, Event: event, CommentsPosted: len(comments)}, nil
}

// determineEvent maps the worst severity present onto a review event:
// critical/high -> REQUEST_CHANGES, medium/low -> COMMENT, no issues ->
// APPROVE.
func determineEvent(issues []domain.ReviewIssue) github.ReviewEvent {
	if len(issues) == 0 {
		return github.ReviewEventApprove
	}
	for _, issue := range issues {
		if issue.Severity == domain.SeverityCritical || issue.Severity == domain.SeverityHigh {
			return github.ReviewEventRequestChanges
		}
	}
	return github.ReviewEventComment
}

// buildComments converts each issue's first citation into an inline
// comment. Only the first citation anchors the comment; additional
// citations are folded into the comment body so no finding is silently
// dropped just because it spans more than one location.
func buildComments(issues []domain.ReviewIssue) []github.ReviewComment {
	var comments []github.ReviewComment
	for _, issue := range issues {
		if len(issue.Citations) == 0 {
			continue
		}
		primary := issue.Citations[0]
		comments = append(comments, github.ReviewComment{
			Path: primary.Path,
			Line: primary.EndLine,
			Side: sideFor(primary.Side),
			Body: formatCommentBody(issue),
		})
	}
	return comments
}

func sideFor(side domain.DiffSide) string {
	if side == domain.SideDeletions {
		return "LEFT"
	}
	return "RIGHT"
}

func formatCommentBody(issue domain.ReviewIssue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**[%s/%s] %s**\n\n%s\n", issue.Severity, issue.Category, issue.Title, issue.ExplanationMD)
	if issue.FixSuggestions != "" {
		fmt.Fprintf(&sb, "\n**Suggested fix:** %s\n", issue.FixSuggestions)
	}
	if issue.TestsToAdd != "" {
		fmt.Fprintf(&sb, "\n**Tests to add:** %s\n", issue.TestsToAdd)
	}
	if len(issue.Citations) > 1 {
		sb.WriteString("\nAlso see:\n")
		for _, c := range issue.Citations[1:] {
			fmt.Fprintf(&sb, "- %s:%d-%d\n", c.Path, c.StartLine, c.EndLine)
		}
	}
	return sb.String()
}

func summaryBody(report domain.ReviewReport) string {
	if len(report.Issues) == 0 {
		return "No issues found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d issue(s) found.", len(report.Issues))
	if report.Dropped > 0 {
		fmt.Fprintf(&sb, " %d issue(s) dropped for failing citation validation.", report.Dropped)
	}
	return sb.String()
}
