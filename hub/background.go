package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/dedup"
	"github.com/hazyhaar/webclip/router"
	"github.com/hazyhaar/webclip/store"
)

// BackgroundConfig configures the Background worker.
type BackgroundConfig struct {
	Store  *store.Store
	Router *router.Router
	// MsgDedup guards against cross-context message echoes.
	// Default: a fresh 5s filter.
	MsgDedup *dedup.Filter
	// StoreDedup guards the store against the same logical capture
	// arriving through different channels. Default: a fresh 10s filter.
	StoreDedup *dedup.Filter
	// ReplayDelay spaces out the records replayed to a freshly attached
	// panel, trading latency for not flooding the UI. Default: 50ms.
	ReplayDelay time.Duration
	Logger      *slog.Logger
	// Sleep overrides replay pacing in tests.
	Sleep func(ctx context.Context, d time.Duration)
}

// Background runs in the background context. It is the sole canonical
// writer of the capture store: captures reported by the page are
// deduplicated, persisted, and forwarded to the panel if one is open.
// A closed panel is not an error; the store is the fallback of record.
type Background struct {
	store       *store.Store
	router      *router.Router
	msgDedup    *dedup.Filter
	storeDedup  *dedup.Filter
	replayDelay time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration)
}

// NewBackground wires a Background and registers its inbound handlers.
func NewBackground(cfg BackgroundConfig) *Background {
	if cfg.MsgDedup == nil {
		cfg.MsgDedup = dedup.New(dedup.WindowMessage)
	}
	if cfg.StoreDedup == nil {
		cfg.StoreDedup = dedup.New(dedup.WindowStore)
	}
	if cfg.ReplayDelay <= 0 {
		cfg.ReplayDelay = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}

	b := &Background{
		store:       cfg.Store,
		router:      cfg.Router,
		msgDedup:    cfg.MsgDedup,
		storeDedup:  cfg.StoreDedup,
		replayDelay: cfg.ReplayDelay,
		logger:      cfg.Logger,
		sleep:       cfg.Sleep,
	}

	b.router.Handle(router.KindCaptureReported, b.onCaptureReported)
	b.router.Handle(router.KindLifecycleLoaded, b.onPanelLoaded)
	b.router.Handle(router.KindCaptureRequested, b.onCaptureRequested)
	b.router.Handle(router.KindPermissionRequested, b.onPermissionRequested)
	return b
}

// onCaptureReported persists one reported capture. Duplicates arriving
// via redundant channels are suppressed before the store sees them.
func (b *Background) onCaptureReported(ctx context.Context, msg router.Message) {
	var rec capture.Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		b.logger.Warn("background: bad capture payload", "error", err)
		return
	}

	hash := dedup.HashRecord(rec)
	if b.msgDedup.IsDuplicate(hash) {
		b.logger.Debug("background: message echo suppressed", "id", rec.ID)
		return
	}
	if b.storeDedup.IsDuplicate(hash) {
		b.logger.Debug("background: store-level duplicate suppressed", "id", rec.ID)
		return
	}

	if err := b.store.Append(ctx, rec); err != nil {
		switch {
		case errors.Is(err, store.ErrClearInProgress):
			b.logger.Debug("background: capture dropped during clear", "id", rec.ID)
			return
		default:
			// Recoverable: the record lives in the store's mirror.
			b.logger.Warn("background: persist degraded", "id", rec.ID, "error", err)
		}
	}

	// Forward to the panel if it is open. "No listener" just means the
	// panel is closed; the capture is already persisted for its next
	// attach.
	err := b.router.Send(ctx, router.OriginPanel, router.KindCaptureReported,
		rec, map[string]string{"type": string(rec.Type)})
	if errors.Is(err, router.ErrNoReceiver) {
		b.logger.Debug("background: panel closed, capture persisted", "id", rec.ID)
	} else if err != nil {
		b.logger.Warn("background: forward to panel failed", "id", rec.ID, "error", err)
	}
}

// onPanelLoaded replays the stored captures to a freshly attached panel,
// spacing the sends so the UI is not flooded. Replay runs off the event
// loop; ordering across messages is not guaranteed and not needed.
func (b *Background) onPanelLoaded(ctx context.Context, msg router.Message) {
	records, err := b.store.List(ctx)
	if err != nil {
		b.logger.Warn("background: replay reads degraded store", "error", err)
	}
	if len(records) == 0 {
		return
	}

	go func() {
		// Oldest first so the panel's prepend rebuilds newest-first.
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			err := b.router.Send(ctx, router.OriginPanel, router.KindCaptureReported,
				rec, map[string]string{"type": string(rec.Type), "replay": "1"})
			if err != nil {
				b.logger.Debug("background: replay stopped", "error", err)
				return
			}
			b.sleep(ctx, b.replayDelay)
		}
	}()
}

// onCaptureRequested relays a panel-initiated capture request to the
// page context. The kind is idempotent, so the router retries on a
// missing receiver.
func (b *Background) onCaptureRequested(ctx context.Context, msg router.Message) {
	if msg.Origin != router.OriginPanel {
		return
	}
	var req CaptureRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		b.logger.Warn("background: bad capture request", "error", err)
		return
	}
	err := b.router.Send(ctx, router.OriginPage, router.KindCaptureRequested,
		req, map[string]string{"type": string(req.Type)})
	if err != nil {
		b.logger.Warn("background: relay capture request failed", "error", err)
	}
}

// onPermissionRequested forwards a permission prompt to the panel so it
// can instruct the user to re-grant.
func (b *Background) onPermissionRequested(ctx context.Context, msg router.Message) {
	err := b.router.Send(ctx, router.OriginPanel, router.KindPermissionRequested,
		json.RawMessage(msg.Payload), msg.Meta)
	if errors.Is(err, router.ErrNoReceiver) {
		b.logger.Debug("background: permission prompt dropped, panel closed")
	} else if err != nil {
		b.logger.Warn("background: forward permission prompt failed", "error", err)
	}
}
