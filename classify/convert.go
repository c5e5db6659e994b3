package classify

import (
	stdhtml "html"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	mdOnce sync.Once
	mdConv *converter.Converter
)

func markdownConverter() *converter.Converter {
	mdOnce.Do(func() {
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return mdConv
}

// HTMLToMarkdown converts an HTML fragment to Markdown. Total function:
// malformed input degrades to plain-text extraction, never an error.
func HTMLToMarkdown(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	md, err := markdownConverter().ConvertString(fragment)
	if err != nil {
		return ExtractPlainText(fragment)
	}
	return strings.TrimSpace(md)
}

// MarkdownToHTML renders Markdown to HTML for panel preview. Approximate
// inverse of HTMLToMarkdown; not required to round-trip exactly. On
// renderer failure the source is returned escaped in a paragraph so the
// preview always shows something.
func MarkdownToHTML(md string) string {
	var buf strings.Builder
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "<p>" + stdhtml.EscapeString(md) + "</p>"
	}
	return strings.TrimSpace(buf.String())
}

// ExtractPlainText strips all markup and returns the text content with
// whitespace collapsed. Script, style and noscript subtrees are skipped.
func ExtractPlainText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	var sb strings.Builder
	for _, n := range nodes {
		collectText(n, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		}
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
