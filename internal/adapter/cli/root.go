// Package cli builds the rlmreview cobra command tree: a thin wrapper
// around the RLM Controller, not part of its core loop.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/rlm"
)

// ErrVersionRequested indicates the user requested the CLI version and no
// further work should be done.
var ErrVersionRequested = errors.New("version requested")

// Asker is the single collaborator the review command drives: it resolves
// prURL itself and streams the RLM loop's events back.
type Asker interface {
	AskPR(ctx context.Context, prURL, question string) (<-chan rlm.Event, error)
}

// ExitCoder carries the CLI's exit-code policy: 2 UrlInvalid, 3
// Unauthorized, 4 RateLimited, 1 otherwise.
type ExitCoder interface {
	ExitCode() int
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Asker   Asker
	Args    Arguments
	Version string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "rlmreview",
		Short: "RLM-driven PR code review",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(reviewCommand(deps.Asker))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func reviewCommand(asker Asker) *cobra.Command {
	var url string
	var question string
	var output string
	var model string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Ask a question about a PR, driven through the RLM loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return exitError{code: 2, err: fmt.Errorf("--url is required")}
			}
			if question == "" {
				return exitError{code: 2, err: fmt.Errorf("--question is required")}
			}
			switch output {
			case "text", "markdown", "json":
			default:
				return exitError{code: 2, err: fmt.Errorf("--output must be one of text, markdown, json")}
			}

			// model is accepted for forward compatibility with a
			// multi-model gateway; the current build is single-provider
			// (see DESIGN.md) and ignores it beyond validation.
			_ = model

			events, err := asker.AskPR(cmd.Context(), url, question)
			if err != nil {
				return toExitError(err)
			}

			var blocks []domain.AnswerBlock
			var endErr string
			var endStatus domain.SessionStatus
			for ev := range events {
				switch ev.Type {
				case rlm.EventIteration:
					if !quiet && ev.Iteration != nil {
						_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "iteration %d/%d\n", ev.Iteration.Index, ev.Iteration.Max)
					}
				case rlm.EventBlock:
					if ev.Block != nil {
						blocks = append(blocks, *ev.Block)
					}
				case rlm.EventEnd:
					endErr = ev.Error
					endStatus = ev.Status
				}
			}

			if endStatus != domain.StatusAnswered {
				if endErr != "" {
					return exitError{code: 1, err: fmt.Errorf("session ended %s: %s", endStatus, endErr)}
				}
				return exitError{code: 1, err: fmt.Errorf("session ended without an answer: %s", endStatus)}
			}

			return renderBlocks(cmd.OutOrStdout(), output, blocks)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "PR URL to review")
	cmd.Flags().StringVar(&question, "question", "", "Question to ask about the PR")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text, markdown, json")
	cmd.Flags().StringVar(&model, "model", "", "Model override (reserved)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress per-iteration progress lines")

	return cmd
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
func (e exitError) ExitCode() int { return e.code }

// toExitError maps a domain.Error onto the CLI's exit-code policy: 2
// UrlInvalid, 3 Unauthorized, 4 RateLimited, 1 otherwise.
func toExitError(err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return exitError{code: 1, err: err}
	}
	switch derr.Code {
	case domain.ErrUrlInvalid:
		return exitError{code: 2, err: derr}
	case domain.ErrUnauthorized:
		return exitError{code: 3, err: derr}
	case domain.ErrRateLimited:
		return exitError{code: 4, err: derr}
	default:
		return exitError{code: 1, err: derr}
	}
}

// ExitCode reports the process exit code for err, defaulting to 1 when err
// doesn't carry one (and 0 when err is nil).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}
