// Package classify decides which representation best fits a DOM
// selection and converts between representations (HTML to Markdown,
// HTML to plain text, Markdown back to HTML for preview).
//
// Classification is pure and synchronous: it inspects a cloned fragment
// serialization and never touches a live DOM.
package classify

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the chosen capture representation for a selection.
type Kind int

const (
	// KindNone means the selection is empty or whitespace-only.
	KindNone Kind = iota
	// KindText means plain text capture loses nothing.
	KindText
	// KindHTML means the selection carries structure Markdown would lose.
	KindHTML
	// KindMarkdown means the structure maps cleanly onto Markdown.
	KindMarkdown
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindHTML:
		return "html"
	case KindMarkdown:
		return "markdown"
	default:
		return "none"
	}
}

// richTags force HTML capture: capturing them as plain text would lose
// user-visible formatting or link targets. Bare structureless wrappers
// (br, p, div, span with no attributes) stay text-eligible.
var richTags = map[atom.Atom]bool{
	atom.A: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Img: true,
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Strong: true, atom.Em: true, atom.Code: true,
}

// markdownTags map cleanly onto Markdown syntax.
var markdownTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.A: true, atom.Code: true, atom.Blockquote: true,
}

// specialTags are media/layout elements Markdown cannot represent.
// Their share of the fragment gates the Markdown choice.
var specialTags = map[atom.Atom]bool{
	atom.Img: true, atom.Video: true, atom.Canvas: true,
	atom.Svg: true, atom.Table: true, atom.Iframe: true,
}

// specialRatioMax is the highest special-to-total element ratio at
// which Markdown is still chosen. Above it, Markdown conversion would
// silently discard embedded media.
const specialRatioMax = 0.2

// Stats summarises the element population of a selection fragment.
type Stats struct {
	Total      int // element count
	Attributed int // elements carrying at least one attribute
	Rich       int // elements in the rich set
	Markdown   int // elements in the Markdown-friendly set
	Special    int // media/layout elements Markdown cannot express
}

// Analyze parses a fragment serialization and tallies its elements.
// Malformed input degrades gracefully: the html parser repairs what it
// can and the tally covers whatever was recovered.
func Analyze(fragment string) Stats {
	var st Stats
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return st
	}
	for _, n := range nodes {
		tally(n, &st)
	}
	return st
}

func bodyContext() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
}

func tally(n *html.Node, st *Stats) {
	if n.Type == html.ElementNode {
		st.Total++
		if len(n.Attr) > 0 {
			st.Attributed++
		}
		if richTags[n.DataAtom] {
			st.Rich++
		}
		if markdownTags[n.DataAtom] {
			st.Markdown++
		}
		if specialTags[n.DataAtom] {
			st.Special++
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		tally(c, st)
	}
}

// ShouldUseHTMLCapture reports whether the fragment carries formatting a
// plain-text capture would lose: any attributed element, or any element
// outside the small allowlist of bare structureless wrappers.
func ShouldUseHTMLCapture(st Stats) bool {
	if st.Attributed > 0 || st.Rich > 0 {
		return true
	}
	return false
}

// ShouldUseMarkdown reports whether a formatting-bearing fragment maps
// cleanly onto Markdown: at least one Markdown-friendly element and a
// special-element share below the threshold.
func ShouldUseMarkdown(st Stats) bool {
	if st.Markdown == 0 || st.Total == 0 {
		return false
	}
	return float64(st.Special)/float64(st.Total) < specialRatioMax
}

// Classify chooses the best representation for a selection given its
// plain text and its cloned-fragment serialization.
func Classify(text, fragment string) Kind {
	if strings.TrimSpace(text) == "" {
		return KindNone
	}
	st := Analyze(fragment)
	if !ShouldUseHTMLCapture(st) {
		return KindText
	}
	if ShouldUseMarkdown(st) {
		return KindMarkdown
	}
	return KindHTML
}
