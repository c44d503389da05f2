package chat

import (
	"strings"

	"argus/internal/markup"
	"argus/internal/session"

	"github.com/charmbracelet/lipgloss"
)

// renderTranscript renders every entry for the viewport.
func (m Model) renderTranscript() string {
	var sb strings.Builder
	width := max(m.viewport.Width-4, 10)

	for _, e := range m.session.Transcript() {
		switch e.Side {
		case session.SideUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.UserMessage.Width(width).Render(e.Text))
		case session.SideAgent:
			sb.WriteString(m.styles.AgentLabel.Render("ARGUS") + "\n")
			body := markup.Term(e.Text, m.styles.Markup())
			sb.WriteString(m.styles.AgentResponse.Width(width).Render(body))
		case session.SideSystem:
			sb.WriteString(m.styles.SystemMessage.Width(width).Render(e.Text))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// refreshViewport re-renders the transcript and keeps it scrolled to the
// latest content.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.viewMode {
	case FilePickerView:
		title := m.styles.Header.Render("Select a file to attach")
		hint := m.styles.Footer.Render("enter: attach  esc: back")
		return lipgloss.JoinVertical(lipgloss.Left, title, m.filepicker.View(), hint)
	case HelpView:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.safeRenderMarkdown(helpMarkdown),
			m.styles.Footer.Render("esc: back"),
		)
	case DashboardView:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.renderDashboard(),
			m.renderNotices(),
			m.renderFooter(),
		)
	}

	parts := []string{m.renderHeader(), m.viewport.View()}
	if n := m.renderNotices(); n != "" {
		parts = append(parts, n)
	}
	if a := m.renderAttachment(); a != "" {
		parts = append(parts, a)
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Border).
		Padding(0, 1)
	if m.session.Processing() {
		inputStyle = inputStyle.BorderForeground(m.styles.Theme.Muted)
	}
	parts = append(parts, inputStyle.Render(m.textarea.View()), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	tabs := []struct {
		label string
		mode  ViewMode
	}{{"Chat", ChatView}, {"Dashboard", DashboardView}}

	var rendered []string
	for _, t := range tabs {
		if m.viewMode == t.mode {
			rendered = append(rendered, m.styles.TabActive.Render(t.label))
		} else {
			rendered = append(rendered, m.styles.Tab.Render(t.label))
		}
	}

	status := ""
	switch {
	case m.session.Processing():
		status = m.spinner.View() + m.styles.Muted.Render(" generating")
	case m.uploading:
		status = m.spinner.View() + m.styles.Muted.Render(" uploading")
	}

	title := m.styles.Header.Render("ARGUS")
	return lipgloss.JoinHorizontal(lipgloss.Center, append([]string{title}, append(rendered, " ", status)...)...)
}

func (m Model) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	width := max(m.width-4, 10)
	var lines []string
	for _, n := range m.notices {
		style := m.styles.ErrorNotice
		if n.Kind == NoticeWarning {
			style = m.styles.WarningNotice
		}
		lines = append(lines, style.Width(width).Render(n.Text+m.styles.Muted.Render("  (esc)")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderAttachment() string {
	a := m.session.Attachment()
	if a == nil {
		return ""
	}
	return m.styles.Attachment.Render("📎 "+a.Filename) + m.styles.Muted.Render("  ctrl+r to remove")
}

func (m Model) renderDashboard() string {
	drift := m.dash.drift
	if drift != "--" {
		drift = m.styles.Drift(drift, m.dash.driftGood)
	}
	rows := []string{
		m.styles.MetricLabel.Render("P99 latency") + m.styles.MetricValue.Render(m.dash.p99),
		m.styles.MetricLabel.Render("Model version") + m.styles.MetricValue.Render(m.dash.version),
		m.styles.MetricLabel.Render("Data drift (PSI)") + drift,
	}
	status := m.dash.status
	if m.dash.loading {
		status = "refreshing..."
	}
	if status != "" {
		rows = append(rows, m.styles.Muted.Render(status))
	}

	logText := "Press r to run the simulation."
	if len(m.dash.log) > 0 || m.dash.simRunning {
		logText = strings.ToValidUTF8(string(m.dash.log), "\uFFFD")
	}
	logHeight := max(m.height-14, 5)
	logText = tail(logText, logHeight)
	pane := m.styles.LogPane.Width(max(m.width-4, 10)).Render(logText)

	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(rows, "\n"), "", pane)
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func (m Model) renderFooter() string {
	return m.styles.Footer.Render(m.help.View(m.keys))
}
