package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// renderBlocks writes the terminal answer blocks in the requested format:
// text, markdown, or json.
func renderBlocks(w io.Writer, format string, blocks []domain.AnswerBlock) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(blocks)
	case "markdown":
		return renderMarkdown(w, blocks)
	default:
		return renderText(w, blocks)
	}
}

func renderMarkdown(w io.Writer, blocks []domain.AnswerBlock) error {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case domain.BlockCode:
			lang := block.Language
			fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, block.Content)
		default:
			fmt.Fprintf(&b, "%s\n\n", block.Content)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderText(w io.Writer, blocks []domain.AnswerBlock) error {
	var b strings.Builder
	for _, block := range blocks {
		fmt.Fprintln(&b, block.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
