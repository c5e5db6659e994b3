// Package screenshot drives viewport capture with the guard rails the
// rest of the pipeline relies on: a cooldown between attempts, rejection
// of overlapping requests, and an overall timeout after which a hung
// platform call is abandoned.
//
// Capture first tries the direct viewport capturer; when that fails with
// a permission error it falls back to the user-consented screen stream
// capturer, if one is configured.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/webclip/capture"
)

// Capturer produces a PNG data URI of the visible viewport.
type Capturer interface {
	CaptureViewport(ctx context.Context) (string, error)
}

// Pipeline errors. All are terminal for the attempt, never for the
// caller's event loop.
var (
	// ErrInFlight rejects a request while another capture is running.
	// Overlapping requests are rejected, not queued.
	ErrInFlight = errors.New("screenshot: capture already in progress")
	// ErrCooldown rejects a request arriving too soon after the
	// previous one.
	ErrCooldown = errors.New("screenshot: cooldown active, retry shortly")
	// ErrTimeout reports that the platform call never resolved within
	// the overall deadline. The late result, if any, is discarded.
	ErrTimeout = errors.New("screenshot: capture timed out")
)

// Options configures a Pipeline. Zero values mean defaults.
type Options struct {
	// Cooldown is the minimum gap between successive attempts.
	// Default: 1s.
	Cooldown time.Duration
	// Timeout bounds one capture attempt end to end. Default: 15s.
	Timeout time.Duration
	// Fallback is tried when the primary capturer reports a permission
	// failure. Optional.
	Fallback Capturer
	// Logger overrides the default slog logger.
	Logger *slog.Logger
	// Now overrides the time source in tests.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Cooldown <= 0 {
		o.Cooldown = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Pipeline serializes screenshot attempts against a primary capturer.
type Pipeline struct {
	primary Capturer
	opts    Options

	mu       sync.Mutex
	inFlight bool
	last     time.Time
}

// New creates a Pipeline around the primary capturer.
func New(primary Capturer, opts Options) *Pipeline {
	opts.defaults()
	return &Pipeline{primary: primary, opts: opts}
}

// Capture runs one guarded capture attempt and returns the image data
// URI. There is no explicit cancel token: cancellation is implicit via
// timeout, and a result arriving after the deadline is ignored.
func (p *Pipeline) Capture(ctx context.Context) (string, error) {
	if err := p.acquire(); err != nil {
		return "", err
	}
	defer p.release()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	type result struct {
		uri string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		uri, err := p.capture(ctx)
		ch <- result{uri, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if !capture.IsImageDataURI(r.uri) {
			return "", fmt.Errorf("screenshot: capturer returned invalid data URI")
		}
		return r.uri, nil
	case <-ctx.Done():
		p.opts.Logger.Warn("screenshot: abandoning capture", "timeout", p.opts.Timeout)
		return "", ErrTimeout
	}
}

// capture tries the primary capturer, falling back to the stream
// capturer only on permission refusal.
func (p *Pipeline) capture(ctx context.Context) (string, error) {
	uri, err := p.primary.CaptureViewport(ctx)
	if err == nil {
		return uri, nil
	}
	if !errors.Is(err, capture.ErrPermissionDenied) || p.opts.Fallback == nil {
		return "", err
	}
	p.opts.Logger.Info("screenshot: viewport capture denied, trying screen stream fallback")
	uri, ferr := p.opts.Fallback.CaptureViewport(ctx)
	if ferr != nil {
		// Both paths refused: surface the distinguished permission
		// failure so the UI can instruct a re-grant.
		if errors.Is(ferr, capture.ErrPermissionDenied) {
			return "", ferr
		}
		return "", fmt.Errorf("screenshot: fallback capture: %w", ferr)
	}
	return uri, nil
}

func (p *Pipeline) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return ErrInFlight
	}
	now := p.opts.Now()
	if !p.last.IsZero() && now.Sub(p.last) < p.opts.Cooldown {
		return ErrCooldown
	}
	p.inFlight = true
	p.last = now
	return nil
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}
