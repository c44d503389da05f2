package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InlineCodeClass and InlineCodeStyle give inline code its fixed look.
const (
	InlineCodeClass = "inline-code"
	InlineCodeStyle = "background:#1e293b;color:#e2e8f0;padding:2px 4px;border-radius:4px;font-family:monospace"
)

// HTML formats text as an HTML fragment. Empty text yields Placeholder.
func HTML(text string) string {
	if text == "" {
		return Placeholder
	}
	return RenderHTML(Parse(text))
}

// RenderHTML renders spans as an escaped HTML fragment.
func RenderHTML(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		for _, n := range spanNodes(s) {
			// Rendering into a strings.Builder cannot fail.
			_ = html.Render(&sb, n)
		}
	}
	return sb.String()
}

func spanNodes(s Span) []*html.Node {
	switch s.Kind {
	case SpanBreak:
		return []*html.Node{element(atom.Br)}
	case SpanStrong:
		b := element(atom.B)
		appendText(b, s.Text)
		return []*html.Node{b}
	case SpanCode:
		c := element(atom.Code)
		c.Attr = []html.Attribute{
			{Key: "class", Val: InlineCodeClass},
			{Key: "style", Val: InlineCodeStyle},
		}
		appendText(c, s.Text)
		return []*html.Node{c}
	default:
		return []*html.Node{{Type: html.TextNode, Data: s.Text}}
	}
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

// appendText adds text children to n, turning newlines into <br> nodes.
func appendText(n *html.Node, text string) {
	for _, s := range splitBreaks(text) {
		if s.Kind == SpanBreak {
			n.AppendChild(element(atom.Br))
			continue
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s.Text})
	}
}
