// Package extract materializes capture payloads from a live page: the
// selected text or HTML subtree, the page's main content region, or a
// screenshot, together with scraped page metadata.
//
// All DOM access goes through the narrow Page capability interface so
// the extraction logic is testable against in-memory fakes instead of a
// rendering engine.
package extract

import "context"

// Page is the capability surface extraction needs from a live page.
// Implementations: browser.Page (rod-backed) and test fakes.
type Page interface {
	// URL returns the page address.
	URL() string
	// Title returns the document title.
	Title() string
	// SelectionText returns the plain text of the current selection,
	// empty if nothing is selected.
	SelectionText(ctx context.Context) (string, error)
	// SelectionHTML returns the serialization of the cloned selection
	// range, empty if nothing is selected.
	SelectionHTML(ctx context.Context) (string, error)
	// SelectionStyle returns computed style properties of the selection
	// anchor (font-family, color). May return an empty map.
	SelectionStyle(ctx context.Context) (map[string]string, error)
	// DocumentHTML returns the full document serialization.
	DocumentHTML(ctx context.Context) (string, error)
	// NeutralizeLinks suppresses default link navigation for the
	// duration of a full-page serialization. The returned func restores
	// the previous behaviour and must always be called.
	NeutralizeLinks(ctx context.Context) (restore func(), err error)
}

// ScreenshotCapturer produces a PNG data URI of the visible viewport.
// The screenshot package provides the production pipeline (cooldown,
// single-flight, timeout); extract only needs the call.
type ScreenshotCapturer interface {
	Capture(ctx context.Context) (string, error)
}
