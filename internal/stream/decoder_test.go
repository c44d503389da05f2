package stream

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func feedAll(d *Decoder, chunks ...string) []Event {
	var out []Event
	for _, c := range chunks {
		out = append(out, d.Feed([]byte(c))...)
	}
	return append(out, d.Flush()...)
}

func visibleText(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Kind == KindText {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}

func countKind(events []Event, k Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestDecoder_PlainText(t *testing.T) {
	events := feedAll(NewDecoder(), "Hel", "lo **world**")
	want := []Event{
		{Kind: KindText, Text: "Hel"},
		{Kind: KindText, Text: "lo **world**"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_TokenWarningStripped(t *testing.T) {
	events := feedAll(NewDecoder(), "abc[[TOKEN_WARNING]]def")
	assert.Equal(t, "abcdef", visibleText(events))
	assert.Equal(t, 1, countKind(events, KindWarning))
}

func TestDecoder_TokenWarningOncePerOccurrence(t *testing.T) {
	events := feedAll(NewDecoder(), "[[TOKEN_WARNING]]a[[TOKEN_WARNING]]", "b[[TOKEN_WARNING]]")
	assert.Equal(t, "ab", visibleText(events))
	assert.Equal(t, 3, countKind(events, KindWarning))
}

func TestDecoder_TokenWarningSplitAcrossChunks(t *testing.T) {
	events := feedAll(NewDecoder(), "abc[[TOKEN_", "WARN", "ING]]def")
	assert.Equal(t, "abcdef", visibleText(events))
	assert.Equal(t, 1, countKind(events, KindWarning))
}

func TestDecoder_BracketThatIsNotAMarker(t *testing.T) {
	d := NewDecoder()
	first := d.Feed([]byte("see ["))
	assert.Equal(t, "see ", visibleText(first), "a trailing '[' is held until resolved")

	rest := append(d.Feed([]byte("1] and [[x]]")), d.Flush()...)
	assert.Equal(t, "[1] and [[x]]", visibleText(rest))
	assert.Zero(t, countKind(rest, KindWarning))
}

func TestDecoder_HeldPrefixFlushedAtEnd(t *testing.T) {
	events := feedAll(NewDecoder(), "trailing [[TOK")
	assert.Equal(t, "trailing [[TOK", visibleText(events))
}

func TestDecoder_MidStreamFailure(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("partial answer"))
	events = append(events, d.Feed([]byte("ERROR: quota exhausted"))...)
	events = append(events, d.Feed([]byte("ignored"))...)
	events = append(events, d.Flush()...)

	want := []Event{
		{Kind: KindText, Text: "partial answer"},
		{Kind: KindFailure, Text: "quota exhausted"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, d.Failed())
}

func TestDecoder_ErrorPrefixOnlyAtChunkStart(t *testing.T) {
	events := feedAll(NewDecoder(), "the log said ERROR: none")
	assert.Equal(t, "the log said ERROR: none", visibleText(events))
	assert.Zero(t, countKind(events, KindFailure))
}

func TestDecoder_SplitUTF8(t *testing.T) {
	word := "héllo ✓"
	b := []byte(word)
	// Split inside the two-byte é and inside the three-byte check mark.
	chunks := []string{string(b[:2]), string(b[2:8]), string(b[8:])}

	d := NewDecoder()
	var events []Event
	for _, c := range chunks {
		for _, e := range d.Feed([]byte(c)) {
			assert.True(t, isValid(e.Text), "event text must be valid UTF-8: %q", e.Text)
			events = append(events, e)
		}
	}
	events = append(events, d.Flush()...)
	assert.Equal(t, word, visibleText(events))
}

func TestDecoder_FlushInvalidTail(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{'o', 'k', 0xE2, 0x9C})
	events := d.Flush()
	assert.Equal(t, "\uFFFD", visibleText(events))
}

func TestStripErrorPrefix(t *testing.T) {
	assert.Equal(t, "too many requests", StripErrorPrefix("ERROR: too many requests\n"))
	assert.Equal(t, "no prefix", StripErrorPrefix("no prefix"))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "warning", KindWarning.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func isValid(s string) bool {
	return strings.ToValidUTF8(s, "") == s
}
