// Package hub assembles the three execution contexts of the capture
// pipeline (page agent, background worker, panel) from the leaf
// components. Each context is a single event loop owning its own dedup
// filter and router binding; the only coordination between them is
// message passing and the shared capture store.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/classify"
	"github.com/hazyhaar/webclip/dedup"
	"github.com/hazyhaar/webclip/extract"
	"github.com/hazyhaar/webclip/router"
	"github.com/hazyhaar/webclip/screenshot"
)

// PageAgentConfig configures a PageAgent.
type PageAgentConfig struct {
	Page      extract.Page
	Extractor *extract.Extractor
	Router    *router.Router
	// Dedup suppresses immediate re-triggers (double DOM events).
	// Default: a fresh 1s filter.
	Dedup  *dedup.Filter
	Logger *slog.Logger
}

// PageAgent runs in the page context: it classifies and extracts
// captures from its page and reports them to the background worker.
type PageAgent struct {
	page      extract.Page
	extractor *extract.Extractor
	router    *router.Router
	dedup     *dedup.Filter
	logger    *slog.Logger
}

// NewPageAgent wires a PageAgent and registers its inbound handlers.
func NewPageAgent(cfg PageAgentConfig) *PageAgent {
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.New(dedup.WindowPage)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &PageAgent{
		page:      cfg.Page,
		extractor: cfg.Extractor,
		router:    cfg.Router,
		dedup:     cfg.Dedup,
		logger:    cfg.Logger,
	}

	// The panel (via the background) can request a capture remotely.
	a.router.Handle(router.KindCaptureRequested, func(ctx context.Context, msg router.Message) {
		var req CaptureRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			a.logger.Warn("page: bad capture request", "error", err)
			return
		}
		a.Capture(ctx, req.Type)
	})
	return a
}

// CaptureRequest asks the page context for a capture of a given type.
type CaptureRequest struct {
	Type capture.Type `json:"type"`
}

// Capture extracts a record of the requested type and reports it to the
// background. All failure modes terminate here: an empty selection and a
// duplicate trigger are silent no-ops, anything else is logged and
// surfaced for the trigger layer to toast. The event loop never dies.
func (a *PageAgent) Capture(ctx context.Context, t capture.Type) error {
	rec, err := a.extractor.Extract(ctx, t, a.page)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrEmptySelection):
		a.logger.Debug("page: nothing selected", "type", t)
		return nil
	case errors.Is(err, capture.ErrPermissionDenied):
		a.logger.Info("page: permission denied, asking background to prompt", "type", t)
		a.send(ctx, router.KindPermissionRequested, CaptureRequest{Type: t}, nil)
		return err
	case errors.Is(err, screenshot.ErrInFlight), errors.Is(err, screenshot.ErrCooldown):
		a.logger.Debug("page: screenshot throttled", "error", err)
		return err
	default:
		a.logger.Error("page: extraction failed", "type", t, "error", err)
		return err
	}

	if a.dedup.IsDuplicate(dedup.HashRecord(*rec)) {
		a.logger.Debug("page: duplicate trigger suppressed", "type", t, "id", rec.ID)
		return nil
	}

	a.send(ctx, router.KindCaptureReported, rec, map[string]string{"type": string(rec.Type)})
	return nil
}

// CaptureAuto classifies the current selection and captures it in the
// best-fitting representation. Empty selections are a no-op.
func (a *PageAgent) CaptureAuto(ctx context.Context) error {
	text, err := a.page.SelectionText(ctx)
	if err != nil {
		a.logger.Error("page: read selection", "error", err)
		return err
	}
	frag, err := a.page.SelectionHTML(ctx)
	if err != nil {
		a.logger.Error("page: clone selection", "error", err)
		return err
	}

	switch classify.Classify(text, frag) {
	case classify.KindText:
		return a.Capture(ctx, capture.TypeText)
	case classify.KindHTML:
		return a.Capture(ctx, capture.TypeHTML)
	case classify.KindMarkdown:
		return a.Capture(ctx, capture.TypeMarkdown)
	default:
		a.logger.Debug("page: nothing selected")
		return nil
	}
}

// send delivers fire-and-forget: the background being unreachable is
// logged and absorbed, never escalated.
func (a *PageAgent) send(ctx context.Context, kind router.Kind, payload any, meta map[string]string) {
	if err := a.router.Send(ctx, router.OriginBackground, kind, payload, meta); err != nil {
		a.logger.Warn("page: send failed", "kind", kind, "error", err)
	}
}
