package chat

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"argus/internal/backend"
	"argus/internal/devserver"
	"argus/internal/markup"
	"argus/internal/session"
	"argus/internal/stream"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedReply(chunks ...string) devserver.ReplyFunc {
	return func(devserver.Turn) []string { return chunks }
}

func TestSubmit_UserEntryBeforeNetwork(t *testing.T) {
	m, tb := NewTestModel(t, devserver.Options{Reply: fixedReply("ok")})

	m.textarea.SetValue("  how many rows?  ")
	m, cmd := press(m, enter)
	require.NotNil(t, cmd)

	got := entries(m)
	require.Len(t, got, 1)
	assert.Equal(t, session.SideUser, got[0].Side)
	assert.Equal(t, "how many rows?", got[0].Text)
	assert.Equal(t, 0, tb.count("/chat"))
	assert.True(t, m.session.Processing())
	assert.False(t, m.textarea.Focused())

	m = drain(t, m, cmd)
	assert.Equal(t, 1, tb.count("/chat"))
	assert.Equal(t, []session.Side{session.SideUser, session.SideAgent}, sides(m))
	assert.False(t, m.session.Processing())
	assert.True(t, m.textarea.Focused())
}

func TestSubmit_EmptyInputDropped(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t  \n"} {
		m, tb := NewTestModel(t, devserver.Options{})
		m.textarea.SetValue(in)
		m, cmd := press(m, enter)

		assert.Nil(t, cmd)
		assert.Zero(t, m.session.Len())
		assert.Equal(t, 0, tb.count("/chat"))
		assert.False(t, m.session.Processing())
	}
}

func TestSubmit_RateLimitRollsBackUserEntry(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{RatePerMinute: 1, Burst: 1, Reply: fixedReply("first answer")})

	m = sendText(t, m, "first")
	require.Equal(t, []session.Side{session.SideUser, session.SideAgent}, sides(m))

	m = sendText(t, m, "second")
	assert.Equal(t, []session.Side{session.SideUser, session.SideAgent}, sides(m))
	assert.Equal(t, "first", entries(m)[0].Text)
	assert.Equal(t, []string{"too many requests"}, noticeTexts(m))
	assert.Equal(t, NoticeError, m.Notices()[0].Kind)
	assert.False(t, m.session.Processing())
	assert.True(t, m.textarea.Focused())
}

func TestSubmit_FormattingAcrossChunks(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{Reply: fixedReply("Hel", "lo **world**")})

	m.textarea.SetValue("greet")
	m, cmd := press(m, enter)

	var frames []string
	m, _ = step(t, m, []tea.Cmd{cmd}, nil, func(m Model, msg tea.Msg) {
		if _, ok := msg.(revealTickMsg); !ok {
			return
		}
		if r := m.session.Reply(); r != nil {
			e, _ := m.session.Entry(r.AgentID)
			frames = append(frames, e.Text)
		}
	})

	got := entries(m)
	require.Len(t, got, 2)
	assert.Equal(t, "Hello **world**", got[1].Text)
	assert.Equal(t, "Hello <b>world</b>", markup.HTML(got[1].Text))

	// One character per tick, in arrival order.
	want := []rune("Hello **world**")
	require.NotEmpty(t, frames)
	for i, f := range frames {
		assert.Equal(t, string(want[:i+1]), f)
	}
	assert.Equal(t, "Hello **wor", frames[10])
	assert.Equal(t, "Hello **wor", markup.HTML(frames[10]))
}

func TestSubmit_TokenWarningStrippedOnce(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"single chunk", []string{"abc" + stream.TokenWarningMarker + "def"}},
		{"split marker", []string{"abc[[TOKEN_", "WARNING]]def"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := NewTestModel(t, devserver.Options{Reply: fixedReply(tt.chunks...)})
			m = sendText(t, m, "q")

			got := entries(m)
			require.Len(t, got, 2)
			assert.Equal(t, "abcdef", got[1].Text)
			assert.Equal(t, []string{TokenWarningText}, noticeTexts(m))
			assert.Equal(t, NoticeWarning, m.Notices()[0].Kind)
		})
	}
}

func TestSubmit_TokenWarningPerOccurrence(t *testing.T) {
	marker := stream.TokenWarningMarker
	m, _ := NewTestModel(t, devserver.Options{Reply: fixedReply("a"+marker, "b"+marker+"c")})
	m = sendText(t, m, "q")

	assert.Equal(t, "abc", entries(m)[1].Text)
	assert.Len(t, m.Notices(), 2)
}

func TestSubmit_MidStreamFailureDiscardsAgentEntry(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{ChunkDelay: 20 * time.Millisecond})
	m = sendText(t, m, "please fail now")

	assert.Equal(t, []session.Side{session.SideUser}, sides(m))
	assert.Equal(t, []string{"analysis engine failed mid-stream"}, noticeTexts(m))
	assert.False(t, m.session.Processing())
	assert.True(t, m.textarea.Focused())
}

func TestSubmit_ErrorPrefixOnlyAtChunkStart(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{Reply: fixedReply("see ERROR: codes")})
	m = sendText(t, m, "q")

	assert.Equal(t, "see ERROR: codes", entries(m)[1].Text)
	assert.Empty(t, m.Notices())
}

func TestSubmit_TransportFailureKeepsUserEntry(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	m := newModelFor(t, url)

	m = sendText(t, m, "anyone there?")
	assert.Equal(t, []session.Side{session.SideUser}, sides(m))
	assert.Equal(t, []string{ConnectionLostText}, noticeTexts(m))
	assert.False(t, m.session.Processing())
}

func TestSubmit_StatusErrorNotice(t *testing.T) {
	m := NewRawTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
	})

	m = sendText(t, m, "hello")
	assert.Equal(t, []session.Side{session.SideUser}, sides(m))
	assert.Equal(t, []string{"Request failed (503): engine not initialized"}, noticeTexts(m))
}

func TestSubmit_EmptyReplyShowsPlaceholder(t *testing.T) {
	m := NewRawTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m = sendText(t, m, "hello")
	got := entries(m)
	require.Len(t, got, 2)
	assert.Equal(t, "", got[1].Text)
	assert.Equal(t, markup.Placeholder, markup.HTML(got[1].Text))
	assert.False(t, m.session.Processing())
}

func TestCancel_MidStream(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{
		ChunkDelay: 5 * time.Second,
		Reply:      fixedReply("first ", "second"),
	})

	m.textarea.SetValue("long question")
	m, cmd := press(m, enter)

	// Run until the first chunk is fully revealed; the next read is then
	// blocked on the server.
	m, rest := step(t, m, []tea.Cmd{cmd}, func(m Model) bool {
		r := m.session.Reply()
		return r != nil && r.Revealed == len("first ")
	}, nil)
	require.True(t, m.session.Processing())
	require.NotEmpty(t, rest)

	// The submit key cancels while processing.
	m, _ = press(m, enter)
	assert.False(t, m.session.Processing())
	assert.True(t, m.textarea.Focused())
	want := []session.Side{session.SideUser, session.SideSystem}
	assert.Equal(t, want, sides(m))
	assert.Equal(t, CancelledText, entries(m)[1].Text)

	// The aborted read and any queued ticks are stale and change nothing.
	m, _ = step(t, m, rest, nil, nil)
	assert.Equal(t, want, sides(m))
	assert.Empty(t, m.Notices())
}

func TestCancel_BeforeReplyStarts(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{})
	m.textarea.SetValue("q")
	m, cmd := press(m, enter)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.False(t, m.session.Processing())
	assert.Equal(t, []session.Side{session.SideUser, session.SideSystem}, sides(m))

	// The request may still complete; its stream is discarded.
	m = drain(t, m, cmd)
	assert.Equal(t, []session.Side{session.SideUser, session.SideSystem}, sides(m))
}

func TestInputDisabledWhileProcessing(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{})
	m.textarea.SetValue("q")
	m, _ = press(m, enter)
	require.True(t, m.session.Processing())

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("typed")})
	assert.Equal(t, "", m.textarea.Value())
}

func TestStaleMessagesIgnored(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{Reply: fixedReply("done")})
	m = sendText(t, m, "q")
	before := entries(m)

	for _, msg := range []tea.Msg{
		revealTickMsg{seq: 1},
		chunkMsg{seq: 1, data: []byte("late")},
		streamEndMsg{seq: 1, err: io.ErrUnexpectedEOF},
		chatFailedMsg{seq: 1, err: &backend.RateLimitError{Message: "x"}},
	} {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	assert.Equal(t, before, entries(m))
	assert.Empty(t, m.Notices())
}

func TestStreamBreakRemovesPartialAgentEntry(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{})
	m.textarea.SetValue("q")
	m, _ = press(m, enter)
	reply := m.session.Reply()
	require.NotNil(t, reply)

	agent := m.session.AppendAgent("par")
	reply.AgentID = agent.ID
	next, _ := m.Update(streamEndMsg{seq: reply.Seq, err: &backend.ReadError{Err: io.ErrUnexpectedEOF}})
	m = next.(Model)

	assert.Equal(t, []session.Side{session.SideUser}, sides(m))
	assert.Equal(t, []string{ConnectionLostText}, noticeTexts(m))
	assert.False(t, m.session.Processing())
}

func TestAttachment_DetachThenSendOmitsFilePath(t *testing.T) {
	var mu sync.Mutex
	var turns []devserver.Turn
	m, tb := NewTestModel(t, devserver.Options{Reply: func(turn devserver.Turn) []string {
		mu.Lock()
		defer mu.Unlock()
		turns = append(turns, turn)
		return []string{"ok"}
	}})

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	m = sendText(t, m, "/attach "+path)
	require.Equal(t, 1, tb.count("/upload"))
	require.NotNil(t, m.session.Attachment())
	assert.Equal(t, "sales.csv", m.session.Attachment().Filename)
	assert.Zero(t, m.session.Len())

	m = sendText(t, m, "one")
	m = sendText(t, m, "two")
	m = sendText(t, m, "/detach")
	assert.Nil(t, m.session.Attachment())
	m = sendText(t, m, "three")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, turns, 3)
	assert.Equal(t, filepath.Join(tb.srv.UploadDir(), "sales.csv"), turns[0].FilePath)
	assert.Equal(t, turns[0].FilePath, turns[1].FilePath, "attachment persists across turns")
	assert.Empty(t, turns[2].FilePath)
}

func TestAttachment_UploadFailureNotice(t *testing.T) {
	m, tb := NewTestModel(t, devserver.Options{})
	m = sendText(t, m, "/attach "+filepath.Join(t.TempDir(), "missing.csv"))

	assert.Equal(t, 0, tb.count("/upload"))
	assert.Nil(t, m.session.Attachment())
	require.Len(t, m.Notices(), 1)
	assert.Contains(t, m.Notices()[0].Text, "Upload failed: ")
}

func TestAttachment_UploadIgnoredWhileProcessing(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{})
	_, err := m.session.Begin("u", "r")
	require.NoError(t, err)

	m, cmd := m.startUpload("whatever.csv")
	assert.Nil(t, cmd)
	assert.False(t, m.uploading)

	m, cmd = m.openFilePicker()
	assert.Nil(t, cmd)
	assert.Equal(t, ChatView, m.viewMode)
}

func TestAttachment_DetachKey(t *testing.T) {
	m, _ := NewTestModel(t, devserver.Options{})
	m.session.SetAttachment(session.Attachment{Path: "p", Filename: "f.csv"})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Nil(t, m.session.Attachment())
}
