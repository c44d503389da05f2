// Package stream decodes the backend's streamed plain-text reply protocol.
//
// The body is UTF-8 text with two in-band signals:
//   - a chunk beginning with ErrorPrefix is a terminal failure whose message
//     follows the prefix;
//   - TokenWarningMarker anywhere in the text is an advisory that is removed
//     from the visible text.
//
// Both byte sequences must match the backend exactly.
package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

const (
	// ErrorPrefix starts a chunk that reports a failure.
	ErrorPrefix = "ERROR: "
	// TokenWarningMarker signals that the conversation is near its context limit.
	TokenWarningMarker = "[[TOKEN_WARNING]]"
)

// Kind identifies a decoded event.
type Kind int

const (
	KindText    Kind = iota // visible reply text
	KindWarning             // one TokenWarningMarker occurrence
	KindFailure             // terminal failure; Text holds the server message
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindWarning:
		return "warning"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one decoded unit of a streamed reply.
type Event struct {
	Kind Kind
	Text string
}

// Decoder turns raw body chunks into events. It holds back bytes that could
// be the start of a split UTF-8 sequence or a split marker until the next
// chunk (or Flush) resolves them. Not safe for concurrent use.
type Decoder struct {
	pending []byte
	failed  bool
}

// NewDecoder returns a ready decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Failed reports whether a failure event has been produced.
func (d *Decoder) Failed() bool {
	return d.failed
}

// Feed decodes one network chunk.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.failed || len(chunk) == 0 {
		return nil
	}

	if bytes.HasPrefix(chunk, []byte(ErrorPrefix)) {
		d.failed = true
		d.pending = nil
		return []Event{{Kind: KindFailure, Text: StripErrorPrefix(string(chunk))}}
	}

	buf := append(d.pending, chunk...)
	d.pending = nil

	hold := incompleteRuneTail(buf)
	text := string(buf[:len(buf)-hold])
	tail := buf[len(buf)-hold:]

	events, rest := splitMarkers(text)

	// Keep a possible marker prefix for the next chunk.
	if k := markerPrefixSuffix(rest); k > 0 {
		d.pending = append([]byte(rest[len(rest)-k:]), tail...)
		rest = rest[:len(rest)-k]
	} else if len(tail) > 0 {
		d.pending = append([]byte(nil), tail...)
	}

	if rest != "" {
		events = append(events, Event{Kind: KindText, Text: rest})
	}
	return events
}

// Flush emits any held-back bytes at end of stream. Invalid UTF-8 becomes U+FFFD.
func (d *Decoder) Flush() []Event {
	if d.failed || len(d.pending) == 0 {
		return nil
	}
	text := strings.ToValidUTF8(string(d.pending), "\uFFFD")
	d.pending = nil
	return []Event{{Kind: KindText, Text: text}}
}

// StripErrorPrefix removes ErrorPrefix and surrounding whitespace.
func StripErrorPrefix(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, ErrorPrefix))
}

// splitMarkers emits text/warning events for every complete marker in s and
// returns the text after the last marker.
func splitMarkers(s string) ([]Event, string) {
	var events []Event
	for {
		i := strings.Index(s, TokenWarningMarker)
		if i < 0 {
			return events, s
		}
		if i > 0 {
			events = append(events, Event{Kind: KindText, Text: s[:i]})
		}
		events = append(events, Event{Kind: KindWarning})
		s = s[i+len(TokenWarningMarker):]
	}
}

// markerPrefixSuffix returns the length of the longest suffix of s that is a
// proper prefix of TokenWarningMarker.
func markerPrefixSuffix(s string) int {
	n := len(TokenWarningMarker) - 1
	if len(s) < n {
		n = len(s)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, TokenWarningMarker[:k]) {
			return k
		}
	}
	return 0
}

// incompleteRuneTail returns how many trailing bytes of b start a UTF-8
// sequence that is not yet complete.
func incompleteRuneTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
