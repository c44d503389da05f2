// Package markup implements the lightweight inline formatting applied to
// chat text: newlines become line breaks, **text** is emphasized and `text`
// is inline code. Nothing else is interpreted; unmatched delimiters are kept
// literally so a partially received reply renders as plain text until its
// closing delimiter arrives.
package markup

import "strings"

// Placeholder is rendered for empty text.
const Placeholder = "..."

// SpanKind identifies a formatted run.
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanBreak
	SpanStrong
	SpanCode
)

// Span is one formatted run. Strong and Code text may contain newlines;
// renderers turn them into breaks.
type Span struct {
	Kind SpanKind
	Text string
}

const (
	strongDelim = "**"
	codeDelim   = "`"
)

// Parse splits text into spans. It is a pure function of the whole input so
// callers re-parse the accumulated buffer on every change.
func Parse(text string) []Span {
	var spans []Span
	var plain strings.Builder

	flush := func() {
		if plain.Len() == 0 {
			return
		}
		spans = append(spans, splitBreaks(plain.String())...)
		plain.Reset()
	}

	for i := 0; i < len(text); {
		rest := text[i:]
		if strings.HasPrefix(rest, strongDelim) {
			if end := strings.Index(rest[len(strongDelim):], strongDelim); end > 0 {
				flush()
				spans = append(spans, Span{Kind: SpanStrong, Text: rest[len(strongDelim) : len(strongDelim)+end]})
				i += len(strongDelim)*2 + end
				continue
			}
		}
		if strings.HasPrefix(rest, codeDelim) {
			if end := strings.Index(rest[len(codeDelim):], codeDelim); end > 0 {
				flush()
				spans = append(spans, Span{Kind: SpanCode, Text: rest[len(codeDelim) : len(codeDelim)+end]})
				i += len(codeDelim)*2 + end
				continue
			}
		}
		plain.WriteByte(text[i])
		i++
	}
	flush()
	return spans
}

func splitBreaks(s string) []Span {
	var spans []Span
	for {
		j := strings.IndexByte(s, '\n')
		if j < 0 {
			if s != "" {
				spans = append(spans, Span{Kind: SpanText, Text: s})
			}
			return spans
		}
		if j > 0 {
			spans = append(spans, Span{Kind: SpanText, Text: s[:j]})
		}
		spans = append(spans, Span{Kind: SpanBreak})
		s = s[j+1:]
	}
}

// PlainText returns the visible text of spans without markup.
func PlainText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Kind == SpanBreak {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
