package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"argus/internal/backend"
	"argus/internal/logging"
	"argus/internal/session"
	"argus/internal/stream"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// submit handles the submit key. While a reply is in flight it cancels
// that reply instead of sending anything.
func (m Model) submit() (Model, tea.Cmd) {
	if m.session.Processing() {
		return m.cancelReply()
	}

	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		m.textarea.Reset()
		return m, nil
	}
	if handled, next, cmd := m.handleCommand(text); handled {
		return next, cmd
	}
	return m.send(text)
}

// send appends the optimistic user entry and starts the request.
func (m Model) send(text string) (Model, tea.Cmd) {
	user := m.session.AppendUser(text)
	requestID := uuid.NewString()
	reply, err := m.session.Begin(user.ID, requestID)
	if err != nil {
		// Unreachable while submit checks Processing first.
		m.session.Remove(user.ID)
		return m, nil
	}

	cr := backend.ChatRequest{Message: text, RequestID: requestID}
	if a := m.session.Attachment(); a != nil {
		cr.FilePath = a.Path
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.decoder = stream.NewDecoder()
	m.ticking = false

	m.textarea.Reset()
	m.textarea.Blur()
	m.textarea.Placeholder = "Generating... (Enter or Ctrl+X to cancel)"
	m.refreshViewport()

	logging.WithRequestID(logging.CategorySession, requestID).
		Info("submit seq=%d chars=%d attachment=%v", reply.Seq, len([]rune(text)), cr.FilePath != "")

	return m, tea.Batch(startChatCmd(ctx, m.client, reply.Seq, cr), m.spinner.Tick)
}

func startChatCmd(ctx context.Context, client *backend.Client, seq uint64, cr backend.ChatRequest) tea.Cmd {
	return func() tea.Msg {
		s, err := client.Chat(ctx, cr)
		if err != nil {
			return chatFailedMsg{seq: seq, err: err}
		}
		return chatStartedMsg{seq: seq, stream: s}
	}
}

// readChunkCmd performs exactly one read. The next read is only issued once
// this chunk has been handled, so at most one read is outstanding.
func readChunkCmd(s *backend.Stream, seq uint64) tea.Cmd {
	return func() tea.Msg {
		data, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return streamEndMsg{seq: seq, err: err}
		}
		return chunkMsg{seq: seq, data: data}
	}
}

func revealTickCmd(delay time.Duration, seq uint64) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return revealTickMsg{seq: seq}
	})
}

func (m Model) handleChatStarted(msg chatStartedMsg) (Model, tea.Cmd) {
	reply, ok := m.session.Current(msg.seq)
	if !ok {
		msg.stream.Close()
		return m, nil
	}
	m.stream = msg.stream
	agent := m.session.AppendAgent("")
	reply.AgentID = agent.ID
	m.refreshViewport()
	return m, readChunkCmd(msg.stream, msg.seq)
}

func (m Model) handleChatFailed(msg chatFailedMsg) (Model, tea.Cmd) {
	reply, ok := m.session.Current(msg.seq)
	if !ok {
		return m, nil
	}
	log := logging.WithRequestID(logging.CategorySession, reply.RequestID)

	var rl *backend.RateLimitError
	var se *backend.StatusError
	var cmd tea.Cmd
	switch {
	case errors.As(msg.err, &rl):
		log.Warn("rate limited, rolling back user entry: %s", rl.Message)
		m.session.Remove(reply.UserID)
		m, cmd = m.addNotice(NoticeError, rl.Message)
	case backend.IsCanceled(msg.err):
		log.Info("request cancelled before the reply started")
	case errors.As(msg.err, &se):
		log.Warn("request rejected: %v", se)
		m, cmd = m.addNotice(NoticeError, statusNotice(se))
	default:
		log.Warn("request failed: %v", msg.err)
		m, cmd = m.addNotice(NoticeError, ConnectionLostText)
	}
	m, focus := m.endReply()
	return m, tea.Batch(cmd, focus)
}

func statusNotice(se *backend.StatusError) string {
	if se.Body == "" {
		return fmt.Sprintf("Request failed (%d)", se.Code)
	}
	return fmt.Sprintf("Request failed (%d): %s", se.Code, se.Body)
}

func (m Model) handleChunk(msg chunkMsg) (Model, tea.Cmd) {
	reply, ok := m.session.Current(msg.seq)
	if !ok || m.decoder == nil {
		return m, nil
	}
	logging.StreamDebug("chunk seq=%d bytes=%d", msg.seq, len(msg.data))

	m, cmds, failed := m.applyEvents(reply, m.decoder.Feed(msg.data))
	if failed {
		return m, tea.Batch(cmds...)
	}
	cmds = append(cmds, readChunkCmd(m.stream, msg.seq))
	m, tick := m.ensureTicking(reply)
	return m, tea.Batch(append(cmds, tick)...)
}

func (m Model) handleStreamEnd(msg streamEndMsg) (Model, tea.Cmd) {
	reply, ok := m.session.Current(msg.seq)
	if !ok {
		return m, nil
	}
	log := logging.WithRequestID(logging.CategoryStream, reply.RequestID)

	switch {
	case msg.err == nil:
	case backend.IsCanceled(msg.err):
		return m.cancelReply()
	default:
		log.Warn("stream broke after %d chars: %v", len(reply.Received), msg.err)
		return m.connectionLost(reply)
	}

	m, cmds, failed := m.applyEvents(reply, m.decoder.Flush())
	if failed {
		return m, tea.Batch(cmds...)
	}
	reply.StreamDone = true
	if m.stream != nil {
		m.stream.Close()
	}
	log.Debug("stream done chars=%d warnings=%d", len(reply.Received), reply.Warnings)

	if reply.Complete() {
		m, done := m.completeReply(reply)
		return m, tea.Batch(append(cmds, done)...)
	}
	m, tick := m.ensureTicking(reply)
	return m, tea.Batch(append(cmds, tick)...)
}

// connectionLost keeps the user entry so the message can be resent; the
// partial agent entry goes.
func (m Model) connectionLost(reply *session.Reply) (Model, tea.Cmd) {
	if reply.AgentID != "" {
		m.session.Remove(reply.AgentID)
	}
	m, notice := m.addNotice(NoticeError, ConnectionLostText)
	m, focus := m.endReply()
	return m, tea.Batch(notice, focus)
}

// applyEvents folds decoder events into the reply. It reports true when a
// failure ended the reply.
func (m Model) applyEvents(reply *session.Reply, events []stream.Event) (Model, []tea.Cmd, bool) {
	var cmds []tea.Cmd
	for _, ev := range events {
		switch ev.Kind {
		case stream.KindText:
			reply.Received = append(reply.Received, []rune(ev.Text)...)
		case stream.KindWarning:
			reply.Warnings++
			logging.StreamWarn("token warning req=%s", reply.RequestID)
			var cmd tea.Cmd
			m, cmd = m.addNotice(NoticeWarning, TokenWarningText)
			cmds = append(cmds, cmd)
		case stream.KindFailure:
			var cmd tea.Cmd
			m, cmd = m.failReply(reply, ev.Text)
			return m, append(cmds, cmd), true
		}
	}
	return m, cmds, false
}

// failReply handles an in-band error: the partial agent entry is discarded.
func (m Model) failReply(reply *session.Reply, text string) (Model, tea.Cmd) {
	logging.WithRequestID(logging.CategoryStream, reply.RequestID).
		Warn("mid-stream failure after %d chars: %s", len(reply.Received), text)
	if reply.AgentID != "" {
		m.session.Remove(reply.AgentID)
	}
	if text == "" {
		text = "The response failed."
	}
	m, notice := m.addNotice(NoticeError, text)
	m, focus := m.endReply()
	return m, tea.Batch(notice, focus)
}

func (m Model) ensureTicking(reply *session.Reply) (Model, tea.Cmd) {
	if m.ticking || !reply.Pending() {
		return m, nil
	}
	m.ticking = true
	return m, revealTickCmd(m.revealDelay, reply.Seq)
}

// handleRevealTick reveals one more character. A tick for a cancelled or
// finished reply carries a stale seq and is dropped.
func (m Model) handleRevealTick(msg revealTickMsg) (Model, tea.Cmd) {
	reply, ok := m.session.Current(msg.seq)
	if !ok {
		return m, nil
	}
	if reply.Pending() {
		reply.Revealed++
		m.session.SetText(reply.AgentID, reply.Visible())
		m.refreshViewport()
	}
	if reply.Pending() {
		return m, revealTickCmd(m.revealDelay, msg.seq)
	}
	m.ticking = false
	if reply.Complete() {
		return m.completeReply(reply)
	}
	return m, nil
}

func (m Model) completeReply(reply *session.Reply) (Model, tea.Cmd) {
	logging.WithRequestID(logging.CategorySession, reply.RequestID).
		Info("reply complete chars=%d in %v", len(reply.Received), time.Since(reply.StartedAt).Round(time.Millisecond))
	return m.endReply()
}

// cancelReply aborts the in-flight reply. The agent entry, if one exists,
// becomes the cancellation notice.
func (m Model) cancelReply() (Model, tea.Cmd) {
	reply := m.session.Reply()
	if reply == nil {
		return m, nil
	}
	logging.WithRequestID(logging.CategorySession, reply.RequestID).
		Info("cancelled after %d/%d chars", reply.Revealed, len(reply.Received))

	if reply.AgentID != "" {
		m.session.Replace(reply.AgentID, session.SideSystem, CancelledText)
	} else {
		m.session.AppendSystem(CancelledText)
	}
	return m.endReply()
}

// endReply tears down the in-flight reply and re-enables input. Every reply
// path ends here.
func (m Model) endReply() (Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	m.decoder = nil
	m.ticking = false
	m.session.End()

	m.textarea.Placeholder = placeholderIdle
	cmd := m.textarea.Focus()
	m.refreshViewport()
	return m, cmd
}
