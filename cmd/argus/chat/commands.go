package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"argus/internal/backend"
	"argus/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// handleCommand runs slash commands. Unknown commands are sent as
// ordinary messages.
func (m Model) handleCommand(text string) (bool, Model, tea.Cmd) {
	if !strings.HasPrefix(text, "/") {
		return false, m, nil
	}
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/attach":
		m.textarea.Reset()
		if arg == "" {
			next, cmd := m.openFilePicker()
			return true, next, cmd
		}
		next, cmd := m.startUpload(arg)
		return true, next, cmd
	case "/detach":
		m.textarea.Reset()
		return true, m.detach(), nil
	case "/help":
		m.textarea.Reset()
		m.viewMode = HelpView
		return true, m, nil
	case "/dashboard":
		m.textarea.Reset()
		next, cmd := m.enterDashboard()
		return true, next, cmd
	case "/quit", "/exit":
		return true, m.shutdown(), tea.Quit
	}
	return false, m, nil
}

// startUpload uploads path as the pending attachment. It is a no-op while a
// reply is in flight or another upload is running.
func (m Model) startUpload(path string) (Model, tea.Cmd) {
	if m.session.Processing() || m.uploading {
		logging.UIDebug("upload of %s ignored: busy", path)
		return m, nil
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	m.uploading = true
	return m, uploadCmd(m.client, path)
}

func uploadCmd(client *backend.Client, path string) tea.Cmd {
	return func() tea.Msg {
		att, err := client.Upload(context.Background(), path)
		return uploadDoneMsg{path: path, attachment: att, err: err}
	}
}

func (m Model) handleUploadDone(msg uploadDoneMsg) (Model, tea.Cmd) {
	m.uploading = false
	if msg.err != nil {
		logging.UploadError("upload of %s failed: %v", msg.path, msg.err)
		return m.addNotice(NoticeError, "Upload failed: "+msg.err.Error())
	}
	logging.Upload("attached %s as %s", msg.attachment.Filename, msg.attachment.Path)
	m.session.SetAttachment(msg.attachment)
	return m, nil
}

// detach clears the pending attachment locally. The server keeps the file.
func (m Model) detach() Model {
	if m.session.Attachment() != nil {
		logging.Upload("attachment removed")
	}
	m.session.ClearAttachment()
	return m
}

func (m Model) openFilePicker() (Model, tea.Cmd) {
	if m.session.Processing() || m.uploading {
		return m, nil
	}
	m.filepicker = newFilePicker()
	m.filepicker.Height = max(m.height-8, 5)
	m.viewMode = FilePickerView
	return m, m.filepicker.Init()
}

// shutdown cancels anything in flight before quitting.
func (m Model) shutdown() Model {
	if m.session.Processing() {
		m, _ = m.cancelReply()
	}
	m = m.stopSimulation()
	return m
}
