// Package ui provides the visual styling for the argus terminal client.
// Light and dark palettes, picked from config or the terminal background.
package ui

import (
	"os"
	"strconv"
	"strings"

	"argus/internal/markup"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Light mode
	LightForeground = lipgloss.Color("#0f172a")
	LightPrimary    = lipgloss.Color("#1e3a8a")
	LightAccent     = lipgloss.Color("#0ea5e9")
	LightSecondary  = lipgloss.Color("#e2e8f0")
	LightMuted      = lipgloss.Color("#94a3b8")
	LightBorder     = lipgloss.Color("#cbd5e1")

	// Dark mode
	DarkForeground = lipgloss.Color("#e2e8f0")
	DarkPrimary    = lipgloss.Color("#38bdf8")
	DarkAccent     = lipgloss.Color("#818cf8")
	DarkSecondary  = lipgloss.Color("#1e293b")
	DarkMuted      = lipgloss.Color("#64748b")
	DarkBorder     = lipgloss.Color("#334155")

	// Semantic, shared by both modes. Good and Bad match the dashboard
	// drift colouring of the web client.
	Good    = lipgloss.Color("#4ade80")
	Bad     = lipgloss.Color("#fb7185")
	Warning = lipgloss.Color("#fbbf24")
	Info    = lipgloss.Color("#60a5fa")
)

// Theme holds one colour scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Secondary:  LightSecondary,
		Muted:      LightMuted,
		Border:     LightBorder,
	}
}

func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Secondary:  DarkSecondary,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// ThemeFor maps the config value light, dark or auto to a Theme.
func ThemeFor(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	default:
		return DetectTheme()
	}
}

// DetectTheme guesses from COLORFGBG ("fg;bg"), falling back to dark.
func DetectTheme() Theme {
	if v := os.Getenv("COLORFGBG"); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if (bg >= 0 && bg <= 6) || bg == 8 {
				return DarkTheme()
			}
			return LightTheme()
		}
	}
	return DarkTheme()
}

// Styles holds all the styled components.
type Styles struct {
	Theme Theme

	Header    lipgloss.Style
	TabActive lipgloss.Style
	Tab       lipgloss.Style
	Footer    lipgloss.Style

	Muted lipgloss.Style
	Bold  lipgloss.Style

	UserLabel     lipgloss.Style
	UserMessage   lipgloss.Style
	AgentLabel    lipgloss.Style
	AgentResponse lipgloss.Style
	SystemMessage lipgloss.Style

	ErrorNotice   lipgloss.Style
	WarningNotice lipgloss.Style

	Attachment lipgloss.Style
	InlineCode lipgloss.Style

	MetricLabel lipgloss.Style
	MetricValue lipgloss.Style
	Good        lipgloss.Style
	Bad         lipgloss.Style
	LogPane     lipgloss.Style

	Spinner lipgloss.Style
	Divider lipgloss.Style
}

func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 1),
		TabActive: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Underline(true).
			Padding(0, 1),
		Tab: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Muted: lipgloss.NewStyle().Foreground(theme.Muted),
		Bold:  lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true),

		UserLabel: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),
		UserMessage: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2),
		AgentLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),
		AgentResponse: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Primary),
		SystemMessage: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true).
			PaddingLeft(2),

		ErrorNotice: lipgloss.NewStyle().
			Foreground(Bad).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Bad),
		WarningNotice: lipgloss.NewStyle().
			Foreground(Warning).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Warning),

		Attachment: lipgloss.NewStyle().
			Background(theme.Secondary).
			Foreground(theme.Primary).
			Padding(0, 1),
		InlineCode: lipgloss.NewStyle().
			Background(theme.Secondary).
			Foreground(Bad),

		MetricLabel: lipgloss.NewStyle().Foreground(theme.Muted).Width(16),
		MetricValue: lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true),
		Good:        lipgloss.NewStyle().Foreground(Good).Bold(true),
		Bad:         lipgloss.NewStyle().Foreground(Bad).Bold(true),
		LogPane: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Padding(0, 1).
			Border(lipgloss.NormalBorder()).
			BorderForeground(theme.Border),

		Spinner: lipgloss.NewStyle().Foreground(theme.Accent),
		Divider: lipgloss.NewStyle().Foreground(theme.Border),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// Markup returns the styles used for formatted agent text.
func (s Styles) Markup() markup.TermStyles {
	return markup.TermStyles{
		Text:   lipgloss.NewStyle().Foreground(s.Theme.Foreground),
		Strong: lipgloss.NewStyle().Foreground(s.Theme.Foreground).Bold(true),
		Code:   s.InlineCode,
	}
}

// Drift renders a drift score, good below threshold.
func (s Styles) Drift(value string, good bool) string {
	if good {
		return s.Good.Render(value)
	}
	return s.Bad.Render(value)
}

// RenderDivider returns a horizontal rule.
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
