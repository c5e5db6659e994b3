package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/classify"
	"github.com/hazyhaar/webclip/idgen"
)

// Config configures an Extractor. Zero values mean defaults.
type Config struct {
	// FullPageSelectors is the priority-ordered list of main-content
	// candidates tried before falling back to the whole document.
	FullPageSelectors []string `json:"fullpage_selectors" yaml:"fullpage_selectors"`

	// MinMainContentLen is the minimum serialized size (bytes) for a
	// selector match to be accepted as the main content region.
	// Default: 500. Heuristic, tunable; short legitimate articles may
	// need a lower value.
	MinMainContentLen int `json:"min_main_content_len" yaml:"min_main_content_len"`

	// ExcerptLen is the excerpt length in characters. Default: 300.
	ExcerptLen int `json:"excerpt_len" yaml:"excerpt_len"`

	// Sanitizer cleans html/fullpage payloads before they enter a
	// record. Default: bluemonday.UGCPolicy().
	Sanitizer *bluemonday.Policy `json:"-" yaml:"-"`

	// Screenshot is the viewport capture pipeline. Nil disables the
	// screenshot type.
	Screenshot ScreenshotCapturer `json:"-" yaml:"-"`

	// NewID generates record IDs. Default: idgen.Default (UUIDv7).
	NewID idgen.Generator `json:"-" yaml:"-"`

	// Now overrides the time source in tests.
	Now func() time.Time `json:"-" yaml:"-"`

	// Logger for debug/warning messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultFullPageSelectors is the priority list of main-content
// candidates: semantic landmarks first, then common CMS containers.
var DefaultFullPageSelectors = []string{
	"main",
	"article",
	"div[role=main]",
	"#content",
	".content",
	".post-content",
	".article-body",
	"#main",
}

func (c *Config) defaults() {
	if len(c.FullPageSelectors) == 0 {
		c.FullPageSelectors = DefaultFullPageSelectors
	}
	if c.MinMainContentLen <= 0 {
		c.MinMainContentLen = 500
	}
	if c.ExcerptLen <= 0 {
		c.ExcerptLen = 300
	}
	if c.Sanitizer == nil {
		c.Sanitizer = bluemonday.UGCPolicy()
	}
	if c.NewID == nil {
		c.NewID = idgen.Default
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor materializes capture records from a Page.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// Extract produces a capture record of the requested type.
//
// Failure modes follow the capture taxonomy: capture.ErrEmptySelection
// for selection-based types with nothing selected (a no-op, not a
// failure to surface), capture.ErrPermissionDenied from the screenshot
// path, and *capture.ExtractionError for everything unexpected,
// including panics during DOM traversal, which are recovered here and
// never reach the caller.
func (e *Extractor) Extract(ctx context.Context, t capture.Type, p Page) (rec *capture.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("extract: recovered panic", "type", t, "panic", r)
			rec = nil
			err = &capture.ExtractionError{Type: t, Reason: "panic during extraction", Cause: fmt.Errorf("%v", r)}
		}
	}()

	switch t {
	case capture.TypeText:
		return e.extractText(ctx, p)
	case capture.TypeHTML:
		return e.extractHTML(ctx, p)
	case capture.TypeMarkdown:
		return e.extractMarkdown(ctx, p)
	case capture.TypeFullPage:
		return e.extractFullPage(ctx, p)
	case capture.TypeScreenshot:
		return e.extractScreenshot(ctx, p)
	default:
		return nil, &capture.ExtractionError{Type: t, Reason: "unknown capture type"}
	}
}

func (e *Extractor) extractText(ctx context.Context, p Page) (*capture.Record, error) {
	text, err := p.SelectionText(ctx)
	if err != nil {
		return nil, &capture.ExtractionError{Type: capture.TypeText, Reason: "read selection", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, capture.ErrEmptySelection
	}
	rec := e.newRecord(ctx, capture.TypeText, text, p)
	e.addSelectionStyle(ctx, p, rec)
	return rec, nil
}

// selectionHTML is the shared inner path for html and markdown captures.
// It carries no side effects of its own so the markdown path can reuse
// it without emitting a duplicate notification or send.
func (e *Extractor) selectionHTML(ctx context.Context, t capture.Type, p Page) (string, error) {
	frag, err := p.SelectionHTML(ctx)
	if err != nil {
		return "", &capture.ExtractionError{Type: t, Reason: "clone selection", Cause: err}
	}
	if strings.TrimSpace(classify.ExtractPlainText(frag)) == "" {
		return "", capture.ErrEmptySelection
	}
	return frag, nil
}

func (e *Extractor) extractHTML(ctx context.Context, p Page) (*capture.Record, error) {
	frag, err := e.selectionHTML(ctx, capture.TypeHTML, p)
	if err != nil {
		return nil, err
	}
	clean := e.cfg.Sanitizer.Sanitize(frag)
	rec := e.newRecord(ctx, capture.TypeHTML, clean, p)
	e.addSelectionStyle(ctx, p, rec)
	return rec, nil
}

func (e *Extractor) extractMarkdown(ctx context.Context, p Page) (*capture.Record, error) {
	frag, err := e.selectionHTML(ctx, capture.TypeMarkdown, p)
	if err != nil {
		return nil, err
	}
	md := classify.HTMLToMarkdown(frag)
	if md == "" {
		return nil, capture.ErrEmptySelection
	}
	rec := e.newRecord(ctx, capture.TypeMarkdown, md, p)
	e.addSelectionStyle(ctx, p, rec)
	return rec, nil
}

func (e *Extractor) extractScreenshot(ctx context.Context, p Page) (*capture.Record, error) {
	if e.cfg.Screenshot == nil {
		return nil, &capture.ExtractionError{Type: capture.TypeScreenshot, Reason: "no screenshot capturer configured"}
	}
	start := e.cfg.Now()
	dataURI, err := e.cfg.Screenshot.Capture(ctx)
	if err != nil {
		// Pass the screenshot pipeline's errors (permission, cooldown,
		// in-flight, timeout) through unchanged: callers act on them.
		return nil, err
	}
	if !capture.IsImageDataURI(dataURI) {
		return nil, &capture.ExtractionError{Type: capture.TypeScreenshot, Reason: "capturer returned invalid data URI"}
	}
	rec := e.newRecord(ctx, capture.TypeScreenshot, dataURI, p)
	rec.Metadata[capture.MetaExtractMS] = e.cfg.Now().Sub(start).Milliseconds()
	rec.Metadata[capture.MetaContentSize] = len(dataURI)
	return rec, nil
}

// newRecord assembles a record with provenance and scraped metadata.
func (e *Extractor) newRecord(ctx context.Context, t capture.Type, content string, p Page) *capture.Record {
	rec := &capture.Record{
		ID:        e.cfg.NewID(),
		Type:      t,
		Content:   content,
		Title:     p.Title(),
		URL:       p.URL(),
		Timestamp: e.cfg.Now(),
		Metadata:  map[string]any{},
	}
	e.addPageMeta(ctx, p, rec)

	if t != capture.TypeScreenshot {
		text := content
		if t == capture.TypeHTML || t == capture.TypeFullPage {
			text = classify.ExtractPlainText(content)
		}
		rec.Metadata[capture.MetaWordCount] = len(strings.Fields(text))
		rec.Metadata[capture.MetaCharCount] = len(text)
		rec.Metadata[capture.MetaExcerpt] = excerpt(text, e.cfg.ExcerptLen)
	}
	return rec
}

func (e *Extractor) addSelectionStyle(ctx context.Context, p Page, rec *capture.Record) {
	style, err := p.SelectionStyle(ctx)
	if err != nil {
		e.cfg.Logger.Debug("extract: selection style unavailable", "error", err)
		return
	}
	if v := style["font-family"]; v != "" {
		rec.Metadata[capture.MetaFontFamily] = v
	}
	if v := style["color"]; v != "" {
		rec.Metadata[capture.MetaTextColor] = v
	}
}

// excerpt returns the first n characters of text with whitespace
// collapsed, cutting on a rune boundary.
func excerpt(text string, n int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= n {
		return collapsed
	}
	return string(runes[:n])
}
