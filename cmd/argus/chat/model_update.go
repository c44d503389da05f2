package chat

import (
	"fmt"

	"argus/cmd/argus/ui"
	"argus/internal/config"
	"argus/internal/logging"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update is the single dispatch loop. Network reads, reveal ticks and
// notice timers all arrive here as messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case chatStartedMsg:
		return m.handleChatStarted(msg)
	case chatFailedMsg:
		return m.handleChatFailed(msg)
	case chunkMsg:
		return m.handleChunk(msg)
	case streamEndMsg:
		return m.handleStreamEnd(msg)
	case revealTickMsg:
		return m.handleRevealTick(msg)

	case uploadDoneMsg:
		return m.handleUploadDone(msg)
	case noticeExpiredMsg:
		return m.dismissNotice(msg.id), nil

	case metricsMsg:
		return m.handleMetrics(msg)
	case metricsTickMsg:
		return m.handleMetricsTick(msg)
	case simStartedMsg:
		return m.handleSimStarted(msg)
	case simChunkMsg:
		return m.handleSimChunk(msg)
	case simEndMsg:
		return m.handleSimEnd(msg)

	case resetDoneMsg:
		if msg.err != nil {
			logging.SessionDebug("startup reset failed: %v", msg.err)
			return m.addNotice(NoticeWarning, "Could not reset the server session: "+msg.err.Error())
		}
		logging.Session("server session reset")
		return m, nil

	case ConfigReloadedMsg:
		return m.applyConfig(msg.Config), nil

	case spinner.TickMsg:
		if !m.session.Processing() && !m.uploading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Anything else belongs to a bubble: directory listings for the file
	// picker, cursor blinks for the textarea.
	var cmd tea.Cmd
	if m.viewMode == FilePickerView {
		m.filepicker, cmd = m.filepicker.Update(msg)
		return m, cmd
	}
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m.shutdown(), tea.Quit
	}

	switch m.viewMode {
	case FilePickerView:
		return m.handleFilePickerKey(msg)
	case HelpView:
		if key.Matches(msg, m.keys.Dismiss, m.keys.Help) || msg.String() == "q" {
			m.viewMode = ChatView
		}
		return m, nil
	case DashboardView:
		switch {
		case key.Matches(msg, m.keys.Dismiss):
			return m.dismissAll(), nil
		case key.Matches(msg, m.keys.SwitchView):
			return m.leaveDashboard(), nil
		case key.Matches(msg, m.keys.Simulate):
			return m.startSimulation()
		case key.Matches(msg, m.keys.Help):
			m.viewMode = HelpView
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Dismiss):
		return m.dismissAll(), nil
	case key.Matches(msg, m.keys.SwitchView):
		return m.enterDashboard()
	case key.Matches(msg, m.keys.Help):
		m.viewMode = HelpView
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		if m.session.Processing() {
			return m.cancelReply()
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.Attach):
		return m.openFilePicker()
	case key.Matches(msg, m.keys.Detach):
		return m.detach(), nil
	}

	var cmd tea.Cmd
	if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if m.session.Processing() {
		// Input is disabled while a reply streams.
		return m, nil
	}
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleFilePickerKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Dismiss) {
		m.viewMode = ChatView
		return m, nil
	}

	var cmd tea.Cmd
	m.filepicker, cmd = m.filepicker.Update(msg)

	if ok, path := m.filepicker.DidSelectFile(msg); ok {
		m.viewMode = ChatView
		next, upload := m.startUpload(path)
		return next, tea.Batch(cmd, upload)
	}
	if ok, path := m.filepicker.DidSelectDisabledFile(msg); ok {
		next, notice := m.addNotice(NoticeError, fmt.Sprintf("%s cannot be attached", path))
		return next, tea.Batch(cmd, notice)
	}
	return m, cmd
}

func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = max(msg.Width, 20)
	m.height = max(msg.Height, 10)
	m.ready = true

	m.textarea.SetWidth(m.width - 4)
	m.help.Width = m.width
	m.viewport.Width = m.width
	// Header, input box, footer and a line of notices.
	m.viewport.Height = max(m.height-9, 3)
	m.filepicker.Height = max(m.height-8, 5)
	m.renderer = newRenderer(m.styles, max(m.width-4, 20))
	m.refreshViewport()
	return m
}

// applyConfig takes the settings that can change without a restart. The
// backend URL is fixed for the life of the client.
func (m Model) applyConfig(cfg *config.Config) Model {
	if cfg == nil {
		return m
	}
	if cfg.Server.BaseURL != m.cfg.Server.BaseURL {
		logging.ConfigWarn("base_url change to %s needs a restart", cfg.Server.BaseURL)
	}
	m.cfg = cfg
	m.revealDelay = cfg.GetRevealDelay()
	m.noticeTimeout = cfg.GetNoticeTimeout()
	m.styles = ui.NewStyles(ui.ThemeFor(cfg.Chat.Theme))
	m.spinner.Style = m.styles.Spinner
	m.renderer = newRenderer(m.styles, max(m.width-4, 20))
	m.refreshViewport()
	logging.Config("applied reloaded config: reveal_delay=%v notice_timeout=%v theme=%s",
		m.revealDelay, m.noticeTimeout, cfg.Chat.Theme)
	return m
}
