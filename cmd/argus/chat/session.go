package chat

import (
	"context"
	"os"

	"argus/cmd/argus/ui"
	"argus/internal/backend"
	"argus/internal/config"
	"argus/internal/logging"
	"argus/internal/session"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const placeholderIdle = "Ask ARGUS about your data... (Enter to send, /attach <file>, F1 for help)"

// InitChat builds the model. It does no I/O; the startup reset runs from Init.
func InitChat(c Config) Model {
	app := c.App
	if app == nil {
		app = config.DefaultConfig()
	}
	theme := app.Chat.Theme
	if c.Theme != "" {
		theme = c.Theme
	}
	styles := ui.NewStyles(ui.ThemeFor(theme))
	keys := defaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = placeholderIdle
	ta.Prompt = "┃ "
	ta.CharLimit = 4096
	ta.ShowLineNumbers = false
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	m := Model{
		client:        c.Client,
		cfg:           app,
		styles:        styles,
		keys:          keys,
		help:          help.New(),
		session:       session.New(),
		textarea:      ta,
		viewport:      vp,
		spinner:       sp,
		filepicker:    newFilePicker(),
		renderer:      newRenderer(styles, 80),
		viewMode:      ChatView,
		revealDelay:   app.GetRevealDelay(),
		noticeTimeout: app.GetNoticeTimeout(),
		dash:          dashboard{p99: "--", version: "--", drift: "--"},
	}
	m.refreshViewport()
	return m
}

func newRenderer(styles ui.Styles, width int) *glamour.TermRenderer {
	style := "light"
	if styles.Theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		logging.UIDebug("markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}

func newFilePicker() filepicker.Model {
	fp := filepicker.New()
	fp.AllowedTypes = nil
	fp.ShowHidden = false
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}
	return fp
}

// Init resets the server-side session, once per client start.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.cfg.Chat.ResetOnStart && m.client != nil {
		cmds = append(cmds, resetCmd(m.client))
	}
	return tea.Batch(cmds...)
}

func resetCmd(client *backend.Client) tea.Cmd {
	return func() tea.Msg {
		return resetDoneMsg{err: client.Reset(context.Background())}
	}
}
