package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/dedup"
	"github.com/hazyhaar/webclip/router"
	"github.com/hazyhaar/webclip/store"
)

// PanelConfig configures a Panel.
type PanelConfig struct {
	Store  *store.Store
	Router *router.Router
	// Dedup suppresses duplicate renders of the same record.
	// Default: a fresh 5s filter.
	Dedup *dedup.Filter
	// OnDisplay is invoked for every newly displayed record. Optional;
	// the visual layer hangs its card rendering here.
	OnDisplay func(capture.Record)
	Logger    *slog.Logger
}

// Panel runs in the panel context: it mirrors the capture list for
// display, and writes edits and deletions back through the same store
// interface the background uses.
type Panel struct {
	store     *store.Store
	router    *router.Router
	dedup     *dedup.Filter
	onDisplay func(capture.Record)
	logger    *slog.Logger

	mu     sync.Mutex
	items  []capture.Record // newest first
	theme  string
	locale string
}

// NewPanel wires a Panel and registers its inbound handlers.
func NewPanel(cfg PanelConfig) *Panel {
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.New(dedup.WindowMessage)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Panel{
		store:     cfg.Store,
		router:    cfg.Router,
		dedup:     cfg.Dedup,
		onDisplay: cfg.OnDisplay,
		logger:    cfg.Logger,
	}

	p.router.Handle(router.KindCaptureReported, p.onCaptureReported)
	p.router.Handle(router.KindThemeChanged, func(ctx context.Context, msg router.Message) {
		p.setPref(&p.theme, msg.Payload)
	})
	p.router.Handle(router.KindLocaleChanged, func(ctx context.Context, msg router.Message) {
		p.setPref(&p.locale, msg.Payload)
	})
	p.router.Handle(router.KindPermissionRequested, func(ctx context.Context, msg router.Message) {
		p.logger.Info("panel: screen capture permission needed, instruct the user to re-grant")
	})
	return p
}

// Attach announces the panel to the background, which replies by
// replaying the stored captures.
func (p *Panel) Attach(ctx context.Context) error {
	err := p.router.Send(ctx, router.OriginBackground, router.KindLifecycleLoaded, nil, nil)
	if err != nil {
		p.logger.Warn("panel: attach announcement failed", "error", err)
	}
	return err
}

// onCaptureReported displays one record, suppressing duplicate renders
// of a record already on screen.
func (p *Panel) onCaptureReported(ctx context.Context, msg router.Message) {
	var rec capture.Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		p.logger.Warn("panel: bad capture payload", "error", err)
		return
	}

	if p.dedup.IsDuplicate(dedup.HashRecord(rec)) {
		p.logger.Debug("panel: duplicate render suppressed", "id", rec.ID)
		return
	}

	p.mu.Lock()
	p.items = append([]capture.Record{rec}, p.items...)
	p.mu.Unlock()

	if p.onDisplay != nil {
		p.onDisplay(rec)
	}
}

// Items returns the displayed records, newest first.
func (p *Panel) Items() []capture.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capture.Record, len(p.items))
	copy(out, p.items)
	return out
}

// Edit replaces the identified record with an edited successor. The
// original is never mutated in place: other contexts observe either the
// old record or the complete new one.
func (p *Panel) Edit(ctx context.Context, id, content, title string) error {
	list, err := p.store.List(ctx)
	if err != nil {
		p.logger.Warn("panel: edit reads degraded store", "error", err)
	}
	for _, r := range list {
		if r.ID != id {
			continue
		}
		edited := r.Merge(content, title, map[string]any{"edited": true})
		if err := p.store.Replace(ctx, edited); err != nil {
			return err
		}
		p.mu.Lock()
		for i := range p.items {
			if p.items[i].ID == id {
				p.items[i] = edited
			}
		}
		p.mu.Unlock()
		return nil
	}
	return fmt.Errorf("panel: edit: record %s not found", id)
}

// Delete removes one record from the store and the display.
func (p *Panel) Delete(ctx context.Context, id string) error {
	if err := p.store.Remove(ctx, id); err != nil {
		return err
	}
	p.mu.Lock()
	kept := p.items[:0]
	for _, r := range p.items {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	p.items = kept
	p.mu.Unlock()
	return nil
}

// ClearAll wipes the store and the display.
func (p *Panel) ClearAll(ctx context.Context) error {
	p.mu.Lock()
	p.items = nil
	p.mu.Unlock()
	p.dedup.Reset()
	return p.store.Clear(ctx)
}

// RequestCapture asks the background to relay a capture request to the
// page context.
func (p *Panel) RequestCapture(ctx context.Context, t capture.Type) error {
	return p.router.Send(ctx, router.OriginBackground, router.KindCaptureRequested,
		CaptureRequest{Type: t}, map[string]string{"type": string(t)})
}

// Theme returns the last observed theme preference.
func (p *Panel) Theme() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.theme
}

// Locale returns the last observed locale preference.
func (p *Panel) Locale() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locale
}

func (p *Panel) setPref(dst *string, payload json.RawMessage) {
	var v string
	if err := json.Unmarshal(payload, &v); err != nil {
		p.logger.Warn("panel: bad preference payload", "error", err)
		return
	}
	p.mu.Lock()
	*dst = v
	p.mu.Unlock()
}
