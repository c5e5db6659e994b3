package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Page is one live tab, exposed through the extract.Page capability
// surface plus viewport screenshots.
type Page struct {
	page   *rod.Page
	url    string
	logger *slog.Logger
}

// URL returns the address the page was opened at.
func (p *Page) URL() string { return p.url }

// Title returns the document title, empty when it cannot be read.
func (p *Page) Title() string {
	res, err := p.page.Eval(`() => document.title`)
	if err != nil {
		p.logger.Debug("browser: read title", "error", err)
		return ""
	}
	return res.Value.Str()
}

// SelectionText returns the plain text of the current selection.
func (p *Page) SelectionText(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => String(window.getSelection())`)
	if err != nil {
		return "", fmt.Errorf("browser: selection text: %w", err)
	}
	return res.Value.Str(), nil
}

// SelectionHTML serialises the cloned contents of every selection range.
// Cloning detaches the fragment, so reading it never perturbs the live
// DOM.
func (p *Page) SelectionHTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => {
		const sel = window.getSelection();
		if (!sel || sel.rangeCount === 0) return "";
		const div = document.createElement("div");
		for (let i = 0; i < sel.rangeCount; i++) {
			div.appendChild(sel.getRangeAt(i).cloneContents());
		}
		return div.innerHTML;
	}`)
	if err != nil {
		return "", fmt.Errorf("browser: selection html: %w", err)
	}
	return res.Value.Str(), nil
}

// SelectionStyle reads the computed font family and text color at the
// selection anchor.
func (p *Page) SelectionStyle(ctx context.Context) (map[string]string, error) {
	res, err := p.page.Context(ctx).Eval(`() => {
		const sel = window.getSelection();
		if (!sel || !sel.anchorNode) return {};
		let el = sel.anchorNode;
		if (el.nodeType !== Node.ELEMENT_NODE) el = el.parentElement;
		if (!el) return {};
		const cs = window.getComputedStyle(el);
		return {"font-family": cs.fontFamily, "color": cs.color};
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: selection style: %w", err)
	}
	style := make(map[string]string)
	for k, v := range res.Value.Map() {
		style[k] = v.Str()
	}
	return style, nil
}

// DocumentHTML serialises the complete document as outer HTML.
func (p *Page) DocumentHTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: document html: %w", err)
	}
	return res.Value.Str(), nil
}

// NeutralizeLinks strips every href so that serialising the document
// cannot trigger prefetching or dangling navigation, and returns a
// restore function that puts the attributes back.
func (p *Page) NeutralizeLinks(ctx context.Context) (func(), error) {
	_, err := p.page.Context(ctx).Eval(`() => {
		for (const a of document.querySelectorAll("a[href]")) {
			a.dataset.clipHref = a.getAttribute("href");
			a.removeAttribute("href");
		}
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: neutralize links: %w", err)
	}
	restore := func() {
		_, err := p.page.Eval(`() => {
			for (const a of document.querySelectorAll("a[data-clip-href]")) {
				a.setAttribute("href", a.dataset.clipHref);
				delete a.dataset.clipHref;
			}
		}`)
		if err != nil {
			p.logger.Warn("browser: restore links", "error", err)
		}
	}
	return restore, nil
}

// CaptureViewport captures the visible viewport as a PNG data URI.
func (p *Page) CaptureViewport(ctx context.Context) (string, error) {
	bin, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("browser: screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(bin), nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}
