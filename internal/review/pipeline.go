package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/rlm"
)

// Pipeline is the Review Pipeline (C5): loads a PR via the Provider
// Gateway, drives the RLM Controller with the canonical review question,
// and parses/repairs the terminal answer into a ReviewReport.
type Pipeline struct {
	gateway    *provider.Gateway
	controller *rlm.Controller
	iterations int
	deadline   time.Duration
}

// NewPipeline wires a Pipeline. iterations <= 0 and deadline <= 0 fall back
// to the controller's own defaults.
func NewPipeline(gateway *provider.Gateway, controller *rlm.Controller, iterations int, deadline time.Duration) *Pipeline {
	return &Pipeline{gateway: gateway, controller: controller, iterations: iterations, deadline: deadline}
}

// Review resolves prURL and runs a fresh session through to a terminal
// ReviewReport in one call.
func (p *Pipeline) Review(ctx context.Context, prURL string) (domain.ReviewReport, error) {
	pr, err := p.gateway.ResolvePR(ctx, prURL)
	if err != nil {
		return domain.ReviewReport{}, err
	}

	session := &domain.ReviewSession{
		ReviewID:  uuid.NewString(),
		PRInfo:    pr,
		Status:    domain.StatusRunning,
		CreatedAt: time.Now(),
	}
	return p.ReviewSession(ctx, session)
}

// AskPR implements the cli.Asker the CLI's `review --url --question` command
// drives: resolve the PR, then stream the raw RLM events for an arbitrary
// question rather than the canonical review question.
func (p *Pipeline) AskPR(ctx context.Context, prURL, question string) (<-chan rlm.Event, error) {
	pr, err := p.gateway.ResolvePR(ctx, prURL)
	if err != nil {
		return nil, err
	}
	session := &domain.ReviewSession{
		ReviewID:  uuid.NewString(),
		PRInfo:    pr,
		Status:    domain.StatusRunning,
		CreatedAt: time.Now(),
	}
	return p.controller.Ask(ctx, session, question, nil, nil, p.iterations, p.deadline)
}

// ReviewSession runs the canonical review question against an
// already-resolved session (the /api/diff/review?reviewId entrypoint,
// where the PR was already loaded by a prior /api/github/load_pr call).
func (p *Pipeline) ReviewSession(ctx context.Context, session *domain.ReviewSession) (domain.ReviewReport, error) {
	events, err := p.controller.Ask(ctx, session, reviewQuestion, nil, nil, p.iterations, p.deadline)
	if err != nil {
		return domain.ReviewReport{}, err
	}

	var blocks []domain.AnswerBlock
	var endErr string
	for ev := range events {
		switch ev.Type {
		case rlm.EventBlock:
			if ev.Block != nil {
				blocks = append(blocks, *ev.Block)
			}
		case rlm.EventEnd:
			endErr = ev.Error
		}
	}

	if session.Status == domain.StatusFailed || session.Status == domain.StatusAborted {
		if endErr != "" {
			return domain.ReviewReport{}, fmt.Errorf("review session %s: %s", session.Status, endErr)
		}
		return domain.ReviewReport{}, fmt.Errorf("review session ended without an answer: %s", session.Status)
	}

	raw, err := parseAnswer(blocks)
	if err != nil {
		return domain.ReviewReport{}, err
	}
	return buildReport(session.PRInfo, raw), nil
}
