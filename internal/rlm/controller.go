package rlm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rlmlabs/rlmreview/internal/determinism"
	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/llm"
	"github.com/rlmlabs/rlmreview/internal/sandbox"
)

const (
	defaultMaxIterations = 10
	hardMaxIterations    = 20
	defaultDeadlineSec   = 600
	defaultTokenCeiling  = 200_000
	retryInstruction     = "\n\nYour last response was not valid JSON; reply with exactly one JSON object."
)

// Caller issues one prompt-in/text-out LLM call and reports the tokens it
// spent, so the controller can enforce the session's token ceiling without
// depending on a specific provider's accounting fields.
type Caller interface {
	Complete(ctx context.Context, prompt string) (text string, tokensIn, tokensOut int, err error)
}

// seeder is satisfied by *llm.Caller; the controller seeds it per session
// (best-effort reproducibility) without widening the Caller interface every
// collaborator implements.
type seeder interface {
	SetSeed(seed uint64)
}

// Controller drives the RLM loop (C4): reasoning, code synthesis, sandboxed
// execution, and observation, until the model answers or a budget is hit.
type Controller struct {
	caller  Caller
	builder *Builder
	exec    *sandbox.Executor
	gateway sandbox.Gateway
}

// NewController wires a Controller from its collaborators. timeout is the
// per-execution sandbox wall-clock budget (SANDBOX_TIMEOUT_SEC).
func NewController(caller Caller, gateway sandbox.Gateway, timeout time.Duration) (*Controller, error) {
	builder, err := NewBuilder()
	if err != nil {
		return nil, err
	}
	return &Controller{
		caller:  caller,
		builder: builder,
		exec:    sandbox.NewExecutor(timeout),
		gateway: gateway,
	}, nil
}

// reasoningCode is the {"reasoning":..., "code":...} envelope the model
// must return each turn.
type reasoningCode struct {
	Reasoning string `json:"reasoning"`
	Code      string `json:"code"`
}

// Ask drives session through the iteration loop for one question, emitting
// events on the returned channel and closing it after the terminal `end`
// event. maxIterations <= 0 uses the default budget; it is always clamped
// to [1, hardMaxIterations]. deadline <= 0 uses the default.
func (c *Controller) Ask(ctx context.Context, session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection, maxIterations int, deadline time.Duration) (<-chan Event, error) {
	budget := clampIterations(maxIterations)
	if deadline <= 0 {
		deadline = defaultDeadlineSec * time.Second
	}
	session.IterationBudget = budget
	session.Status = domain.StatusRunning

	if s, ok := c.caller.(seeder); ok {
		s.SetSeed(determinism.GenerateSeed(session.PRInfo.BaseSHA, session.PRInfo.HeadSHA))
	}

	events := make(chan Event, budget+2)
	go c.run(ctx, session, question, conversation, selection, budget, deadline, events)
	return events, nil
}

func clampIterations(requested int) int {
	if requested <= 0 {
		requested = defaultMaxIterations
	}
	if requested > hardMaxIterations {
		requested = hardMaxIterations
	}
	return requested
}

func (c *Controller) run(ctx context.Context, session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection, budget int, deadline time.Duration, events chan<- Event) {
	defer close(events)

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	events <- Event{Type: EventStart, ReviewID: session.ReviewID}

	tokensSpent := 0
	consecutiveParseErrors := 0
	for session.NextIndex() <= budget {
		if err := ctx.Err(); err != nil {
			c.finish(session, events, domain.StatusAborted, deadlineErrorFor(err))
			return
		}

		iteration, answer, spent, fatal := c.step(ctx, session, question, conversation, selection, false)
		tokensSpent += spent
		session.TokensUsed = tokensSpent

		completed := session.Append(iteration)
		events <- Event{Type: EventIteration, ReviewID: session.ReviewID, Iteration: &completed}

		if fatal != nil {
			c.finish(session, events, domain.StatusFailed, fatal.Error())
			return
		}
		if answer != nil {
			for i := range answer {
				events <- Event{Type: EventBlock, ReviewID: session.ReviewID, Block: &answer[i]}
			}
			c.finish(session, events, domain.StatusAnswered, "")
			return
		}

		// A ParseError consumes the iteration; two in a row terminate the
		// session as FAILED.
		if isParseError(iteration.Error) {
			consecutiveParseErrors++
			if consecutiveParseErrors >= 2 {
				c.finish(session, events, domain.StatusFailed, iteration.Error)
				return
			}
		} else {
			consecutiveParseErrors = 0
		}

		if tokensSpent >= defaultTokenCeiling {
			break
		}
	}

	c.forceAnswer(ctx, session, question, conversation, selection, &tokensSpent, events)
}

// forceAnswer runs the mandatory final iteration once the iteration budget
// or token ceiling is reached: one more model call with a "must answer
// now" prompt, so termination produces an AnswerBlock rather than a bare
// failure. If the model still does not call answer(...), a best-effort
// summary of the transcript is emitted instead; either way the session
// ends ANSWERED, since exhausting the budget is not itself an error.
func (c *Controller) forceAnswer(ctx context.Context, session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection, tokensSpent *int, events chan<- Event) {
	iteration, answer, spent, fatal := c.step(ctx, session, question, conversation, selection, true)
	*tokensSpent += spent
	session.TokensUsed = *tokensSpent

	completed := session.Append(iteration)
	events <- Event{Type: EventIteration, ReviewID: session.ReviewID, Iteration: &completed}

	if fatal != nil {
		c.finish(session, events, domain.StatusFailed, fatal.Error())
		return
	}
	if answer != nil {
		for i := range answer {
			events <- Event{Type: EventBlock, ReviewID: session.ReviewID, Block: &answer[i]}
		}
		c.finish(session, events, domain.StatusAnswered, "")
		return
	}

	degraded := degradedAnswer(session)
	events <- Event{Type: EventBlock, ReviewID: session.ReviewID, Block: &degraded}
	c.finish(session, events, domain.StatusAnswered, "")
}

// degradedAnswer summarizes the transcript as a single markdown block when
// the model does not comply even with a forced "must answer now" prompt.
func degradedAnswer(session *domain.ReviewSession) domain.AnswerBlock {
	return domain.AnswerBlock{
		Type: domain.BlockMarkdown,
		Content: fmt.Sprintf(
			"No conclusive answer was reached within the %d-iteration budget. %d iterations were attempted; see the transcript for partial findings.",
			session.IterationBudget, len(session.Transcript),
		),
	}
}

// isParseError reports whether an iteration's recorded error is the model
// returning unparseable JSON (as opposed to a sandbox or LLM-transport
// failure), by checking the stable code prefix domain.Error.Error() emits.
func isParseError(errMsg string) bool {
	return errMsg != "" && strings.HasPrefix(errMsg, string(domain.ErrParseError)+":")
}

func deadlineErrorFor(err error) string {
	if err == context.DeadlineExceeded {
		return domain.NewError(domain.ErrDeadline, "session deadline exceeded").Error()
	}
	return domain.NewError(domain.ErrCancelled, "session cancelled").Error()
}

func (c *Controller) finish(session *domain.ReviewSession, events chan<- Event, status domain.SessionStatus, errMsg string) {
	session.Status = status
	events <- Event{Type: EventEnd, ReviewID: session.ReviewID, Error: errMsg, Status: status}
}

// step runs exactly one reasoning/code/execute/observe round, returning the
// completed Iteration (not yet appended), a non-nil answer if the model
// terminated this round, tokens spent, and a fatal error if one occurred.
// Only Cancelled, Deadline, and Unauthorized are session-fatal; anything
// else is recorded on the iteration and the loop continues.
func (c *Controller) step(ctx context.Context, session *domain.ReviewSession, question string, conversation []string, selection *domain.Selection, forced bool) (domain.Iteration, []domain.AnswerBlock, int, error) {
	start := time.Now()

	render := c.builder.Render
	if forced {
		render = c.builder.RenderForced
	}
	prompt, err := render(session, question, conversation, selection)
	if err != nil {
		return domain.Iteration{Error: err.Error(), DurationMS: msSince(start)}, nil, 0, nil
	}

	parsed, tokensIn, tokensOut, err := c.callAndParse(ctx, prompt)
	if err != nil {
		if derr, ok := err.(*domain.Error); ok && derr.Code.Fatal() {
			return domain.Iteration{Error: err.Error(), DurationMS: msSince(start)}, nil, tokensIn + tokensOut, err
		}
		return domain.Iteration{Error: err.Error(), DurationMS: msSince(start)}, nil, tokensIn + tokensOut, nil
	}

	// nestedTokens aggregates tokens spent by any llm_query calls issued
	// from inside the sandbox this iteration, so the session's token
	// ceiling reflects nested usage as well as the controller's own call.
	nestedTokens := 0
	interceptor := sandbox.NewInterceptor(ctx, c.gateway, session.PRInfo.Provider, session.PRInfo.Repo,
		session.PRInfo.BaseSHA, session.PRInfo.HeadSHA, c.nestedLLMQueryFunc(&nestedTokens))
	obs := c.exec.Execute(ctx, interceptor, parsed.Code)

	it := domain.Iteration{
		Reasoning:  parsed.Reasoning,
		Code:       parsed.Code,
		Output:     obs.Stdout,
		Error:      obs.Error,
		DurationMS: msSince(start),
	}

	totalTokens := tokensIn + tokensOut + nestedTokens
	if obs.Answered {
		return it, obs.Answer, totalTokens, nil
	}
	return it, nil, totalTokens, nil
}

// callAndParse calls the model and parses its {"reasoning","code"} JSON
// envelope, retrying once with a corrective instruction on a parse failure
// before recording ParseError and letting the loop advance: a single bad
// response doesn't abort the session.
func (c *Controller) callAndParse(ctx context.Context, prompt string) (reasoningCode, int, int, error) {
	text, tokensIn, tokensOut, err := c.caller.Complete(ctx, prompt)
	if err != nil {
		return reasoningCode{}, tokensIn, tokensOut, err
	}

	parsed, parseErr := decodeReasoningCode(text)
	if parseErr == nil {
		return parsed, tokensIn, tokensOut, nil
	}

	retryText, retryIn, retryOut, retryErr := c.caller.Complete(ctx, prompt+retryInstruction)
	if retryErr != nil {
		return reasoningCode{}, tokensIn + retryIn, tokensOut + retryOut, retryErr
	}
	parsed, parseErr = decodeReasoningCode(retryText)
	if parseErr != nil {
		return reasoningCode{}, tokensIn + retryIn, tokensOut + retryOut,
			domain.Wrap(domain.ErrParseError, "model did not return valid JSON", parseErr)
	}
	return parsed, tokensIn + retryIn, tokensOut + retryOut, nil
}

func decodeReasoningCode(text string) (reasoningCode, error) {
	var parsed reasoningCode
	err := json.Unmarshal([]byte(llm.ExtractJSONFromMarkdown(text)), &parsed)
	return parsed, err
}

// nestedLLMQueryFunc returns the tool-free single-shot callback passed to
// the sandbox interceptor for llm_query. Nesting depth is statically one:
// it has no capability access of its own. spent accumulates
// prompt+completion tokens across every nested call made during one
// iteration so step can fold them into the session's token ceiling.
func (c *Controller) nestedLLMQueryFunc(spent *int) func(ctx context.Context, prompt, system string) (string, error) {
	return func(ctx context.Context, prompt, system string) (string, error) {
		full := prompt
		if system != "" {
			full = system + "\n\n" + prompt
		}
		text, tokensIn, tokensOut, err := c.caller.Complete(ctx, full)
		*spent += tokensIn + tokensOut
		return text, err
	}
}

func msSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
