package cli

import (
	"os"

	"golang.org/x/term"
)

// IsOutputTerminal reports whether stdout is attached to a terminal, used to
// decide whether per-iteration progress lines are worth printing.
func IsOutputTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
