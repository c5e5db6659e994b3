package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/webclip/audit"
	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/extract"
	"github.com/hazyhaar/webclip/screenshot"
	"github.com/hazyhaar/webclip/store"
)

// CapturePage is a live page that can be extracted from and shot.
// browser.Page satisfies it.
type CapturePage interface {
	extract.Page
	CaptureViewport(ctx context.Context) (string, error)
	Close() error
}

// PageOpener navigates to a URL and hands back a live page.
type PageOpener interface {
	Open(ctx context.Context, url string) (CapturePage, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store  *store.Store
	Opener PageOpener
	// Extract tunes the extractor. The screenshot capturer is wired
	// per page and must be left nil here.
	Extract    extract.Config
	Screenshot screenshot.Options
	// Trail, when set, receives an audit entry per operation.
	Trail  *audit.Trail
	Logger *slog.Logger
}

// Service is the outward-facing capture surface: it drives whole-page
// captures against URLs and exposes the store for listing and clearing.
// The MCP tools and the HTTP API sit on top of it.
type Service struct {
	store      *store.Store
	opener     PageOpener
	extractCfg extract.Config
	shotOpts   screenshot.Options
	trail      *audit.Trail
	logger     *slog.Logger
}

// NewService wires a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		opener:     cfg.Opener,
		extractCfg: cfg.Extract,
		shotOpts:   cfg.Screenshot,
		trail:      cfg.Trail,
		logger:     cfg.Logger,
	}
}

// CaptureURL opens pageURL, extracts a record of the requested type,
// persists it, and returns it. Selection-based types are not available
// without a user selection; full page and screenshot are.
func (s *Service) CaptureURL(ctx context.Context, pageURL string, t capture.Type) (rec *capture.Record, err error) {
	start := time.Now()
	defer func() {
		if s.trail == nil {
			return
		}
		id := ""
		if rec != nil {
			id = rec.ID
		}
		e := s.trail.Record("capture_url", id, nil, err, time.Since(start))
		e.CaptureType = string(t)
		e.URL = pageURL
		s.trail.LogAsync(e)
	}()

	if t.NeedsSelection() {
		return nil, fmt.Errorf("hub: capture type %q needs a user selection", t)
	}
	if s.opener == nil {
		return nil, fmt.Errorf("hub: no browser configured")
	}

	page, err := s.opener.Open(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	cfg := s.extractCfg
	cfg.Screenshot = screenshot.New(pageShot{page}, s.shotOpts)
	rec, err = extract.New(cfg).Extract(ctx, t, page)
	if err != nil {
		return nil, err
	}

	if err := s.store.Append(ctx, *rec); err != nil {
		var degraded *store.StorageError
		if !errors.As(err, &degraded) {
			return nil, err
		}
		s.logger.Warn("hub: persist degraded", "id", rec.ID, "error", err)
	}
	return rec, nil
}

// List returns the stored captures, newest first.
func (s *Service) List(ctx context.Context) ([]capture.Record, error) {
	return s.store.List(ctx)
}

// Remove deletes one capture by id.
func (s *Service) Remove(ctx context.Context, id string) error {
	start := time.Now()
	err := s.store.Remove(ctx, id)
	if s.trail != nil {
		s.trail.LogAsync(s.trail.Record("remove", id, nil, err, time.Since(start)))
	}
	return err
}

// Clear empties the store.
func (s *Service) Clear(ctx context.Context) error {
	start := time.Now()
	err := s.store.Clear(ctx)
	if s.trail != nil {
		s.trail.LogAsync(s.trail.Record("clear", "", nil, err, time.Since(start)))
	}
	return err
}

// Audit queries the audit trail. Returns nil when no trail is wired.
func (s *Service) Audit(ctx context.Context, f *audit.Filter) ([]*audit.Entry, error) {
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.Query(ctx, f)
}

// pageShot adapts a CapturePage to the screenshot primary capturer.
type pageShot struct{ page CapturePage }

func (p pageShot) CaptureViewport(ctx context.Context) (string, error) {
	return p.page.CaptureViewport(ctx)
}
