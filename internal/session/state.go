// Package session holds the client-side conversation state: the transcript,
// the pending attachment and the single in-flight reply. The state is owned
// by one dispatch loop and is not safe for concurrent use.
//
// Nothing here is persisted. A restart starts an empty transcript and the
// client asks the backend to reset its side of the session.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Side identifies who a transcript entry belongs to.
type Side string

const (
	SideUser   Side = "user"
	SideAgent  Side = "agent"
	SideSystem Side = "system"
)

// ErrBusy is returned by Begin while another reply is in flight.
var ErrBusy = errors.New("a reply is already in flight")

// Entry is one transcript message.
type Entry struct {
	ID   string
	Side Side
	Text string
	Time time.Time
}

// Attachment is a server-issued handle for an uploaded file.
type Attachment struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// Reply is the in-flight streamed reply. Received holds every decoded
// character so far; Revealed counts how many runes are on screen.
type Reply struct {
	Seq        uint64
	UserID     string
	AgentID    string
	RequestID  string
	Received   []rune
	Revealed   int
	StreamDone bool
	Warnings   int
	StartedAt  time.Time
}

// Pending reports whether received characters are still waiting to be revealed.
func (r *Reply) Pending() bool {
	return r.Revealed < len(r.Received)
}

// Visible returns the revealed prefix.
func (r *Reply) Visible() string {
	return string(r.Received[:r.Revealed])
}

// Complete reports whether the stream ended and everything is revealed.
func (r *Reply) Complete() bool {
	return r.StreamDone && !r.Pending()
}

// State is the explicit client session.
type State struct {
	transcript []Entry
	attachment *Attachment
	reply      *Reply
	seq        uint64
	now        func() time.Time
}

// New returns an empty session.
func New() *State {
	return &State{now: time.Now}
}

// Transcript returns a copy of the entries in order.
func (s *State) Transcript() []Entry {
	out := make([]Entry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Len returns the number of transcript entries.
func (s *State) Len() int {
	return len(s.transcript)
}

// Entry looks an entry up by ID.
func (s *State) Entry(id string) (Entry, bool) {
	if i := s.index(id); i >= 0 {
		return s.transcript[i], true
	}
	return Entry{}, false
}

func (s *State) append(side Side, text string) Entry {
	e := Entry{ID: uuid.NewString(), Side: side, Text: text, Time: s.now()}
	s.transcript = append(s.transcript, e)
	return e
}

// AppendUser adds a user entry.
func (s *State) AppendUser(text string) Entry { return s.append(SideUser, text) }

// AppendAgent adds an agent entry.
func (s *State) AppendAgent(text string) Entry { return s.append(SideAgent, text) }

// AppendSystem adds a system notice entry.
func (s *State) AppendSystem(text string) Entry { return s.append(SideSystem, text) }

// SetText updates an entry's text in place. Returns false if absent.
func (s *State) SetText(id, text string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.transcript[i].Text = text
	return true
}

// Replace swaps an entry for a new side/text at the same position.
func (s *State) Replace(id string, side Side, text string) (Entry, bool) {
	i := s.index(id)
	if i < 0 {
		return Entry{}, false
	}
	e := Entry{ID: uuid.NewString(), Side: side, Text: text, Time: s.now()}
	s.transcript[i] = e
	return e, true
}

// Remove deletes an entry. Returns false if absent.
func (s *State) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.transcript = append(s.transcript[:i], s.transcript[i+1:]...)
	return true
}

func (s *State) index(id string) int {
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].ID == id {
			return i
		}
	}
	return -1
}

// Attachment returns the pending attachment or nil.
func (s *State) Attachment() *Attachment {
	if s.attachment == nil {
		return nil
	}
	a := *s.attachment
	return &a
}

// SetAttachment replaces the pending attachment.
func (s *State) SetAttachment(a Attachment) {
	s.attachment = &a
}

// ClearAttachment drops the pending attachment locally.
func (s *State) ClearAttachment() {
	s.attachment = nil
}

// Processing reports whether a reply is in flight.
func (s *State) Processing() bool {
	return s.reply != nil
}

// Reply returns the in-flight reply or nil.
func (s *State) Reply() *Reply {
	return s.reply
}

// Begin starts a new in-flight reply tied to the given user entry.
func (s *State) Begin(userID, requestID string) (*Reply, error) {
	if s.reply != nil {
		return nil, ErrBusy
	}
	s.seq++
	s.reply = &Reply{Seq: s.seq, UserID: userID, RequestID: requestID, StartedAt: s.now()}
	return s.reply, nil
}

// Current returns the in-flight reply if its sequence matches seq.
// Messages from a cancelled or finished reply carry a stale seq.
func (s *State) Current(seq uint64) (*Reply, bool) {
	if s.reply == nil || s.reply.Seq != seq {
		return nil, false
	}
	return s.reply, true
}

// End discards the in-flight reply.
func (s *State) End() {
	s.reply = nil
}
