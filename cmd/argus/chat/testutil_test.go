package chat

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"argus/internal/backend"
	"argus/internal/config"
	"argus/internal/devserver"
	"argus/internal/session"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

// testBackend is a devserver that counts requests per path.
type testBackend struct {
	srv      *devserver.Server
	requests map[string]*atomic.Int32
}

func (b *testBackend) count(path string) int {
	if c, ok := b.requests[path]; ok {
		return int(c.Load())
	}
	return 0
}

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = baseURL
	cfg.Chat.RevealDelay = "0"
	cfg.Chat.NoticeTimeout = "0"
	cfg.Chat.ResetOnStart = false
	cfg.Chat.Theme = "dark"
	cfg.Dashboard.MetricsInterval = "0"
	return cfg
}

// NewTestModel returns a sized model talking to a fresh devserver.
func NewTestModel(t *testing.T, opts devserver.Options) (Model, *testBackend) {
	t.Helper()
	opts.UploadDir = t.TempDir()
	srv, err := devserver.New(opts)
	require.NoError(t, err)

	tb := &testBackend{srv: srv, requests: map[string]*atomic.Int32{}}
	for _, p := range []string{"/chat", "/upload", "/reset", "/metrics", "/run-simulation"} {
		tb.requests[p] = &atomic.Int32{}
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := tb.requests[r.URL.Path]; ok {
			c.Add(1)
		}
		srv.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	return newModelFor(t, ts.URL), tb
}

// NewRawTestModel returns a model talking to h.
func NewRawTestModel(t *testing.T, h http.HandlerFunc) Model {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return newModelFor(t, ts.URL)
}

func newModelFor(t *testing.T, baseURL string) Model {
	t.Helper()
	client, err := backend.New(baseURL)
	require.NoError(t, err)

	m := InitChat(Config{Client: client, App: testConfig(baseURL)})
	m.textarea.Cursor.SetMode(cursor.CursorStatic)
	m = m.resize(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func isOwnMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case chatStartedMsg, chatFailedMsg, chunkMsg, streamEndMsg, revealTickMsg,
		uploadDoneMsg, noticeExpiredMsg, resetDoneMsg,
		metricsMsg, metricsTickMsg, simStartedMsg, simChunkMsg, simEndMsg:
		return true
	}
	return false
}

// step runs queued commands one at a time, feeding the model's own messages
// back into Update. It stops when the queue is empty or until returns true,
// and hands back whatever is still queued.
func step(t *testing.T, m Model, queue []tea.Cmd, until func(Model) bool, observe func(Model, tea.Msg)) (Model, []tea.Cmd) {
	t.Helper()
	for n := 0; len(queue) > 0; n++ {
		if n > 100000 {
			t.Fatalf("command queue did not settle")
		}
		if until != nil && until(m) {
			return m, queue
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		if !isOwnMsg(msg) {
			continue
		}
		next, cmd := m.Update(msg)
		m = next.(Model)
		if observe != nil {
			observe(m, msg)
		}
		queue = append(queue, cmd)
	}
	return m, nil
}

// drain runs cmd to completion.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	m, _ = step(t, m, []tea.Cmd{cmd}, nil, nil)
	return m
}

// press sends a key and returns the model and command.
func press(m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(k)
	return next.(Model), cmd
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

// sendText types text and submits it, running everything to completion.
func sendText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.textarea.SetValue(text)
	m, cmd := press(m, enter)
	return drain(t, m, cmd)
}

func entries(m Model) []session.Entry {
	return m.session.Transcript()
}

func sides(m Model) []session.Side {
	var out []session.Side
	for _, e := range entries(m) {
		out = append(out, e.Side)
	}
	return out
}

func noticeTexts(m Model) []string {
	var out []string
	for _, n := range m.Notices() {
		out = append(out, n.Text)
	}
	return out
}
