package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// addNotice shows a banner and schedules its expiry. A zero timeout keeps
// it until dismissed.
func (m Model) addNotice(kind NoticeKind, text string) (Model, tea.Cmd) {
	m.noticeSeq++
	n := Notice{ID: m.noticeSeq, Kind: kind, Text: text}
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
	if m.noticeTimeout <= 0 {
		return m, nil
	}
	id := n.ID
	return m, tea.Tick(m.noticeTimeout, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

func (m Model) dismissNotice(id int) Model {
	out := m.notices[:0:0]
	for _, n := range m.notices {
		if n.ID != id {
			out = append(out, n)
		}
	}
	m.notices = out
	return m
}

func (m Model) dismissAll() Model {
	m.notices = nil
	return m
}

// Notices returns the banners currently shown, oldest first.
func (m Model) Notices() []Notice {
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}
