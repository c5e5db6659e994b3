// Package capture defines the record model shared by every execution
// context of the webclip pipeline: the page agent that produces captures,
// the background worker that persists them, and the panel that displays
// and edits them.
package capture

import (
	"strings"
	"time"
)

// Type identifies the representation a capture was materialised in.
// Immutable once a Record is created.
type Type string

const (
	TypeText       Type = "text"
	TypeHTML       Type = "html"
	TypeMarkdown   Type = "markdown"
	TypeScreenshot Type = "screenshot"
	TypeFullPage   Type = "fullpage"
)

// Valid reports whether t is one of the known capture types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeHTML, TypeMarkdown, TypeScreenshot, TypeFullPage:
		return true
	}
	return false
}

// NeedsSelection reports whether this capture type requires a non-empty
// page selection. Fullpage and screenshot captures operate on the whole
// viewport and work without one.
func (t Type) NeedsSelection() bool {
	switch t {
	case TypeText, TypeHTML, TypeMarkdown:
		return true
	}
	return false
}

// Record is one user-initiated capture. Records are immutable after
// creation: panel edits produce a replacement record via Merge, never an
// in-place mutation visible to other contexts.
type Record struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Content   string         `json:"content"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metadata keys populated by the extractor. Which keys are meaningful
// depends on Type.
const (
	MetaDomain      = "domain"
	MetaDescription = "description"
	MetaAuthor      = "author"
	MetaKeywords    = "keywords"
	MetaCanonical   = "canonical"
	MetaExcerpt     = "excerpt"
	MetaWordCount   = "word_count"
	MetaCharCount   = "char_count"
	MetaContentSize = "content_size"
	MetaExtractMS   = "extract_ms"
	MetaFontFamily  = "font_family"
	MetaTextColor   = "text_color"
	MetaSelector    = "selector"
)

// Merge returns a copy of r with the given field edits applied. Only
// Content and Title are editable; Type, URL and provenance are fixed at
// capture time. Metadata entries in edits are merged key-wise.
func (r Record) Merge(content, title string, meta map[string]any) Record {
	out := r
	if content != "" {
		out.Content = content
	}
	if title != "" {
		out.Title = title
	}
	if len(meta) > 0 {
		m := make(map[string]any, len(r.Metadata)+len(meta))
		for k, v := range r.Metadata {
			m[k] = v
		}
		for k, v := range meta {
			m[k] = v
		}
		out.Metadata = m
	}
	return out
}

// Validate checks the structural invariants of a record. A screenshot
// record whose content is not an image data URI fails the record.
func (r Record) Validate() error {
	if r.ID == "" {
		return &ExtractionError{Type: r.Type, Reason: "record has no id"}
	}
	if !r.Type.Valid() {
		return &ExtractionError{Type: r.Type, Reason: "unknown capture type"}
	}
	if r.Type == TypeScreenshot && !IsImageDataURI(r.Content) {
		return &ExtractionError{Type: r.Type, Reason: "screenshot content is not an image data URI"}
	}
	return nil
}

// IsImageDataURI reports whether s looks like a base64 image data URI.
func IsImageDataURI(s string) bool {
	if !strings.HasPrefix(s, "data:image/") {
		return false
	}
	rest := s[len("data:image/"):]
	i := strings.Index(rest, ";base64,")
	if i <= 0 {
		return false
	}
	return len(rest) > i+len(";base64,")
}
