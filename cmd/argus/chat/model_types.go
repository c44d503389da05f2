package chat

import (
	"context"
	"time"

	"argus/cmd/argus/ui"
	"argus/internal/backend"
	"argus/internal/config"
	"argus/internal/session"
	"argus/internal/stream"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
)

const (
	// CancelledText replaces an agent entry when the user cancels.
	CancelledText = "Response cancelled."
	// ConnectionLostText is the notice for transport failures.
	ConnectionLostText = "Connection lost. Please try again."
	// TokenWarningText is the advisory shown for each token warning marker.
	TokenWarningText = "This conversation is getting long. Older turns have been summarized to keep within the context window."

	maxNotices = 3
)

// ViewMode determines which screen is active.
type ViewMode int

const (
	ChatView ViewMode = iota
	DashboardView
	FilePickerView
	HelpView
)

func (v ViewMode) String() string {
	switch v {
	case ChatView:
		return "chat"
	case DashboardView:
		return "dashboard"
	case FilePickerView:
		return "filepicker"
	case HelpView:
		return "help"
	default:
		return "unknown"
	}
}

// Config holds what the chat interface needs to start.
type Config struct {
	Client *backend.Client
	App    *config.Config
	// Theme overrides App.Chat.Theme when set.
	Theme string
}

// NoticeKind separates errors from advisories.
type NoticeKind int

const (
	NoticeError NoticeKind = iota
	NoticeWarning
)

// Notice is a transient, dismissible banner.
type Notice struct {
	ID   int
	Kind NoticeKind
	Text string
}

// dashboard is the metrics view state.
type dashboard struct {
	p99       string
	version   string
	drift     string
	driftGood bool
	status    string
	loading   bool

	// pollGen invalidates scheduled polls when the view is left.
	pollGen int

	log        []byte
	simRunning bool
	simStream  *backend.Stream
	simCancel  context.CancelFunc
}

// Model is the Bubble Tea model for the client. All state changes happen
// in Update; commands only perform I/O and report back with messages.
type Model struct {
	client  *backend.Client
	cfg     *config.Config
	styles  ui.Styles
	keys    keyMap
	help    help.Model
	session *session.State

	textarea   textarea.Model
	viewport   viewport.Model
	spinner    spinner.Model
	filepicker filepicker.Model
	renderer   *glamour.TermRenderer

	viewMode ViewMode
	width    int
	height   int
	ready    bool

	revealDelay   time.Duration
	noticeTimeout time.Duration

	// In-flight reply plumbing. The reply itself lives in session.
	stream  *backend.Stream
	cancel  context.CancelFunc
	decoder *stream.Decoder
	ticking bool

	notices   []Notice
	noticeSeq int

	uploading bool

	dash dashboard
}

// chatStartedMsg carries the open reply stream.
type chatStartedMsg struct {
	seq    uint64
	stream *backend.Stream
}

// chatFailedMsg reports that the chat request produced no stream.
type chatFailedMsg struct {
	seq uint64
	err error
}

// chunkMsg is one network read of the reply body.
type chunkMsg struct {
	seq  uint64
	data []byte
}

// streamEndMsg ends a reply stream. err is nil on normal completion.
type streamEndMsg struct {
	seq uint64
	err error
}

// revealTickMsg advances the revealed text by one character.
type revealTickMsg struct {
	seq uint64
}

type uploadDoneMsg struct {
	path       string
	attachment session.Attachment
	err        error
}

type noticeExpiredMsg struct {
	id int
}

type resetDoneMsg struct {
	err error
}

type metricsMsg struct {
	gen     int
	summary backend.Summary
	err     error
}

type metricsTickMsg struct {
	gen int
}

type simStartedMsg struct {
	stream *backend.Stream
}

type simChunkMsg struct {
	data []byte
}

type simEndMsg struct {
	err error
}

// ConfigReloadedMsg pushes a reloaded configuration into a running UI.
type ConfigReloadedMsg struct {
	Config *config.Config
}
