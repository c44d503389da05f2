package markup

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TermStyles styles spans for terminal output.
type TermStyles struct {
	Text   lipgloss.Style
	Strong lipgloss.Style
	Code   lipgloss.Style
}

// DefaultTermStyles is used when the caller has no theme.
func DefaultTermStyles() TermStyles {
	return TermStyles{
		Text:   lipgloss.NewStyle(),
		Strong: lipgloss.NewStyle().Bold(true),
		Code: lipgloss.NewStyle().
			Background(lipgloss.Color("#1e293b")).
			Foreground(lipgloss.Color("#e2e8f0")),
	}
}

// Term formats text for the terminal. Empty text yields Placeholder.
func Term(text string, st TermStyles) string {
	if text == "" {
		return st.Text.Render(Placeholder)
	}
	return RenderTerm(Parse(text), st)
}

// RenderTerm renders spans with lipgloss styles. Styled runs are rendered
// line by line so a newline inside emphasis does not break the escape codes.
func RenderTerm(spans []Span, st TermStyles) string {
	var sb strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case SpanBreak:
			sb.WriteByte('\n')
		case SpanStrong:
			writeLines(&sb, s.Text, st.Strong)
		case SpanCode:
			writeLines(&sb, s.Text, st.Code)
		default:
			writeLines(&sb, s.Text, st.Text)
		}
	}
	return sb.String()
}

func writeLines(sb *strings.Builder, text string, style lipgloss.Style) {
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if line != "" {
			sb.WriteString(style.Render(line))
		}
	}
}
