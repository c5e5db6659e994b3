package classify

import (
	"strings"
	"testing"
)

func TestClassify_EmptySelection(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if got := Classify(text, "<p>ignored</p>"); got != KindNone {
			t.Fatalf("Classify(%q): got %v, want KindNone", text, got)
		}
	}
}

func TestClassify_BareWrappersStayText(t *testing.T) {
	// br, p, div, span with no attributes carry no formatting worth keeping.
	cases := []string{
		"<p>hello world</p>",
		"<div><span>hello</span><br>world</div>",
		"<div><div><p>nested but plain</p></div></div>",
	}
	for _, frag := range cases {
		st := Analyze(frag)
		if ShouldUseHTMLCapture(st) {
			t.Fatalf("fragment %q: HTML capture predicate must be false", frag)
		}
		if got := Classify("hello world", frag); got != KindText {
			t.Fatalf("Classify(%q): got %v, want KindText", frag, got)
		}
	}
}

func TestClassify_RichTagsForceHTMLCapture(t *testing.T) {
	cases := []string{
		`<p>see <a href="https://example.com">link</a></p>`,
		`<div><img src="x.png"></div>`,
		"<p><strong>bold</strong></p>",
		"<table><tr><td>cell</td></tr></table>",
	}
	for _, frag := range cases {
		st := Analyze(frag)
		if !ShouldUseHTMLCapture(st) {
			t.Fatalf("fragment %q: HTML capture predicate must be true", frag)
		}
	}
}

func TestClassify_AttributedWrapperForcesHTMLCapture(t *testing.T) {
	st := Analyze(`<div class="card">hello</div>`)
	if !ShouldUseHTMLCapture(st) {
		t.Fatal("attributed wrapper must trigger HTML capture")
	}
}

func TestClassify_MarkdownFriendly(t *testing.T) {
	frag := `<h1>Title</h1><p>Intro</p><a href="/x">link</a><ul><li>one</li><li>two</li></ul>`
	if got := Classify("Title Intro link one two", frag); got != KindMarkdown {
		t.Fatalf("got %v, want KindMarkdown", got)
	}
}

func TestClassify_SpecialRatioForcesHTML(t *testing.T) {
	// One img out of two elements: ratio 0.5 >= 0.2, and no Markdown set
	// member present either.
	frag := `<div><img src="x.png"></div>`
	if got := Classify("alt text", frag); got != KindHTML {
		t.Fatalf("got %v, want KindHTML", got)
	}
}

func TestClassify_MediaHeavyMarkdownSetStillHTML(t *testing.T) {
	// Markdown-friendly tags present, but img share is 2 of 4 elements.
	frag := `<p>a</p><img src="1.png"><img src="2.png"><p>b</p>`
	if got := Classify("a b", frag); got != KindHTML {
		t.Fatalf("got %v, want KindHTML", got)
	}
}

func TestAnalyze_Counts(t *testing.T) {
	st := Analyze(`<p>one</p><img src="x"><div>two</div>`)
	if st.Total != 3 {
		t.Fatalf("Total: got %d, want 3", st.Total)
	}
	if st.Attributed != 1 {
		t.Fatalf("Attributed: got %d, want 1", st.Attributed)
	}
	if st.Special != 1 {
		t.Fatalf("Special: got %d, want 1", st.Special)
	}
	if st.Markdown != 1 {
		t.Fatalf("Markdown: got %d, want 1", st.Markdown)
	}
}

func TestAnalyze_MalformedInput(t *testing.T) {
	// The parser repairs what it can; Analyze must not panic or error.
	st := Analyze("<p>unclosed <strong>nested <em>deep")
	if st.Total == 0 {
		t.Fatal("expected recovered elements from malformed input")
	}
}

func TestHTMLToMarkdown_BoldRoundTrip(t *testing.T) {
	got := HTMLToMarkdown("<p>Hello <strong>world</strong></p>")
	if got != "Hello **world**" {
		t.Fatalf("got %q, want %q", got, "Hello **world**")
	}
}

func TestHTMLToMarkdown_HeadingAndLink(t *testing.T) {
	got := HTMLToMarkdown(`<h2>Title</h2><p>See <a href="https://example.com">here</a>.</p>`)
	if !strings.Contains(got, "## Title") {
		t.Fatalf("heading not converted: %q", got)
	}
	if !strings.Contains(got, "[here](https://example.com)") {
		t.Fatalf("anchor not converted: %q", got)
	}
}

func TestHTMLToMarkdown_Empty(t *testing.T) {
	if got := HTMLToMarkdown("   "); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestMarkdownToHTML_Preview(t *testing.T) {
	got := MarkdownToHTML("# Title\n\nHello **world**")
	if !strings.Contains(got, "<h1") || !strings.Contains(got, "<strong>world</strong>") {
		t.Fatalf("preview render incomplete: %q", got)
	}
}

func TestExtractPlainText(t *testing.T) {
	got := ExtractPlainText(`<div><script>var x = 1;</script><p>Hello   <em>wide</em>   world</p></div>`)
	if got != "Hello wide world" {
		t.Fatalf("got %q, want %q", got, "Hello wide world")
	}
}

func TestExtractPlainText_EntityDecoding(t *testing.T) {
	got := ExtractPlainText("<p>fish &amp; chips</p>")
	if got != "fish & chips" {
		t.Fatalf("got %q, want %q", got, "fish & chips")
	}
}
