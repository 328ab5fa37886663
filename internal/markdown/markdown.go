// Package markdown flattens markdown model answers into plain text so that
// translation services see prose rather than markup.
package markdown

import (
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// blockTags end a line when they close.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "pre": true, "tr": true, "div": true, "hr": true, "br": true,
}

// ToHTML renders markdown with the common extensions.
func ToHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	return string(markdown.Render(doc, renderer))
}

// ToPlainText renders md and strips the markup. List items keep a "- "
// bullet, block elements end their line and runs of blank lines collapse to
// one.
func ToPlainText(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	return tidy(html.UnescapeString(stripTags(ToHTML(md))))
}

func stripTags(s string) string {
	var out strings.Builder
	var tag strings.Builder
	inTag := false

	for _, ch := range s {
		switch {
		case ch == '<':
			inTag = true
			tag.Reset()
		case ch == '>' && inTag:
			inTag = false
			name, closing := tagName(tag.String())
			switch {
			case name == "li" && !closing:
				out.WriteString("- ")
			case blockTags[name] && (closing || name == "br" || name == "hr"):
				out.WriteString("\n")
			}
		case inTag:
			tag.WriteRune(ch)
		default:
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// tagName extracts the lower-case element name from the inside of a tag.
func tagName(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	closing := strings.HasPrefix(raw, "/")
	raw = strings.TrimPrefix(raw, "/")
	if i := strings.IndexAny(raw, " \t\n/"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(raw), closing
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
