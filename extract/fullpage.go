package extract

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/webclip/capture"
)

// extractFullPage captures the page's main content region. It tries the
// configured selectors in priority order and accepts the first match
// whose serialization exceeds the minimum size; when none qualifies the
// whole document is captured. Link navigation is neutralized while the
// document is serialized so the extraction cannot trigger an accidental
// navigation, and restored immediately afterwards.
func (e *Extractor) extractFullPage(ctx context.Context, p Page) (*capture.Record, error) {
	start := e.cfg.Now()

	restore, err := p.NeutralizeLinks(ctx)
	if err != nil {
		e.cfg.Logger.Warn("extract: neutralize links failed", "url", p.URL(), "error", err)
	} else {
		defer restore()
	}

	docHTML, err := p.DocumentHTML(ctx)
	if err != nil {
		return nil, &capture.ExtractionError{Type: capture.TypeFullPage, Reason: "serialize document", Cause: err}
	}

	content, selector := e.mainContent(docHTML)
	clean := e.cfg.Sanitizer.Sanitize(content)

	rec := e.newRecord(ctx, capture.TypeFullPage, clean, p)
	rec.Metadata[capture.MetaExtractMS] = e.cfg.Now().Sub(start).Milliseconds()
	rec.Metadata[capture.MetaContentSize] = len(clean)
	if selector != "" {
		rec.Metadata[capture.MetaSelector] = selector
	}
	return rec, nil
}

// mainContent locates the main content region in a serialized document.
// Returns the chosen subtree's serialization and the selector that
// matched, or the whole document and "" when no candidate qualifies.
func (e *Extractor) mainContent(docHTML string) (string, string) {
	doc, err := html.Parse(strings.NewReader(docHTML))
	if err != nil {
		return docHTML, ""
	}

	for _, sel := range e.cfg.FullPageSelectors {
		for _, n := range querySelectorAll(doc, sel) {
			rendered := renderNode(n)
			if len(rendered) >= e.cfg.MinMainContentLen {
				return rendered, sel
			}
		}
	}
	return docHTML, ""
}

// renderNode serializes a DOM subtree back to HTML.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// querySelectorAll returns all nodes matching a simple CSS selector.
// Supported: tag, .class, #id, tag.class, tag#id, tag[attr],
// tag[attr=val], and space-separated descendant combinations.
func querySelectorAll(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(doc, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i])...)
		}
		matches = next
	}
	return matches
}

// matchSimple finds all nodes matching a single selector part.
func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// parseSimpleSelector parses "tag.class", "#id", "tag[attr=val]", etc.
func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}

	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		if !hasAttr(n, s.attrKey) {
			return false
		}
		if s.attrVal != "" && getAttr(n, s.attrKey) != s.attrVal {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
