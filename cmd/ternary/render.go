package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ahrav/go-ternary/internal/domain"
)

// badge renders tag as a filled label. Colors are dropped when w is not a
// terminal.
func badge(w io.Writer, tag domain.PresentationTag) string {
	style := lipgloss.NewRenderer(w).NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#f8fafc")).
		Background(lipgloss.Color(tag.Color)).
		Padding(0, 1)
	return style.Render(tag.Symbol + " " + tag.Label)
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// writeDecision prints d by name, or as a badge when pretty is set.
func writeDecision(w io.Writer, d domain.Decision, pretty bool) error {
	if pretty {
		_, err := fmt.Fprintln(w, badge(w, domain.Flag(d)), d)
		return err
	}
	_, err := fmt.Fprintln(w, d)
	return err
}
