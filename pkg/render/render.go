// Package render formats completion output for the terminal.
package render

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Markdown renders assistant markdown for a terminal stdout. When stdout is
// not a terminal, or the terminal has no color support, the content passes
// through unchanged so output stays pipeable.
func Markdown(content string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return content
	}
	if termenv.ColorProfile() == termenv.Ascii {
		return content
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || width > 100 {
		width = 100
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// Preview collapses a string to a single line and truncates it to width
// terminal cells, accounting for ANSI sequences and wide runes.
func Preview(s string, width int) string {
	collapsed := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		collapsed = append(collapsed, r)
	}
	out := string(collapsed)
	if ansi.StringWidth(out) <= width {
		return out
	}
	return ansi.Truncate(out, width, "…")
}
