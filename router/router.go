package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/webclip/dedup"
)

// ErrNoReceiver is returned by a Transport when the target context has
// no live listener. The panel is routinely closed, so callers treat this
// as recoverable: persisted state is the fallback of record.
var ErrNoReceiver = errors.New("router: no receiving end")

// DeliveryError wraps a failed send after retries are exhausted.
type DeliveryError struct {
	Kind   Kind
	Target Origin
	Cause  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("router: deliver %s to %s: %v", e.Kind, e.Target, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Transport is the platform messaging primitive: async send plus a
// handler registration, at-most-once delivery, no ordering guarantee.
type Transport interface {
	Send(ctx context.Context, target Origin, msg Message) error
	OnMessage(origin Origin, handler func(ctx context.Context, msg Message))
}

// Handler processes one inbound message.
type Handler func(ctx context.Context, msg Message)

// Options configures a Router.
type Options struct {
	// RetryBackoff is the linear backoff unit: attempt n waits n×this.
	// Default: 200ms.
	RetryBackoff time.Duration
	// MaxRetries caps retries after the initial send. Default: 2.
	// Only idempotent kinds are ever retried.
	MaxRetries int
	// IdemWindow is the inbound idempotency window. Default: 10s.
	IdemWindow time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
	// Sleep overrides backoff sleeping in tests.
	Sleep func(ctx context.Context, d time.Duration)
	// Clock overrides the idempotency window's time source in tests.
	Clock func() time.Time
}

func (o *Options) defaults() {
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.IdemWindow <= 0 {
		o.IdemWindow = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sleep == nil {
		o.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}
}

// Router binds one context to the transport: outbound sends with the
// retry policy, inbound dispatch with an idempotency window guarding
// against the same logical action arriving twice through different
// trigger paths.
type Router struct {
	origin    Origin
	transport Transport
	opts      Options
	idem      *dedup.Filter
	handlers  map[Kind][]Handler
}

// New creates a Router for the given context and registers it on the
// transport. Register handlers with Handle before messages flow.
func New(origin Origin, transport Transport, opts Options) *Router {
	opts.defaults()
	var idemOpts []dedup.Option
	if opts.Clock != nil {
		idemOpts = append(idemOpts, dedup.WithClock(opts.Clock))
	}
	r := &Router{
		origin:    origin,
		transport: transport,
		opts:      opts,
		idem:      dedup.New(opts.IdemWindow, idemOpts...),
		handlers:  make(map[Kind][]Handler),
	}
	transport.OnMessage(origin, r.dispatch)
	return r
}

// Origin returns the context this router is bound to.
func (r *Router) Origin() Origin { return r.origin }

// Handle registers a handler for a message kind. Multiple handlers per
// kind run in registration order.
func (r *Router) Handle(kind Kind, h Handler) {
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Send marshals payload and delivers it to target. Fire-and-forget
// semantics: a send that still fails after the retry policy is wrapped
// in a *DeliveryError for the caller to log or absorb; it is never
// fatal. ErrNoReceiver on non-retryable kinds comes back unwrapped so
// callers can recognise the target is simply not open.
func (r *Router) Send(ctx context.Context, target Origin, kind Kind, payload any, meta map[string]string) error {
	msg, err := NewMessage(kind, r.origin, payload, meta)
	if err != nil {
		return err
	}
	return r.send(ctx, target, msg)
}

func (r *Router) send(ctx context.Context, target Origin, msg Message) error {
	err := r.transport.Send(ctx, target, msg)
	if err == nil {
		return nil
	}

	if !msg.Kind.Retryable() || !errors.Is(err, ErrNoReceiver) {
		if errors.Is(err, ErrNoReceiver) {
			return err
		}
		return &DeliveryError{Kind: msg.Kind, Target: target, Cause: err}
	}

	// Linear backoff: 200ms × attempt, small fixed cap.
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		r.opts.Sleep(ctx, time.Duration(attempt)*r.opts.RetryBackoff)
		if ctx.Err() != nil {
			return &DeliveryError{Kind: msg.Kind, Target: target, Cause: ctx.Err()}
		}
		err = r.transport.Send(ctx, target, msg)
		if err == nil {
			return nil
		}
		r.opts.Logger.Debug("router: retry failed",
			"kind", msg.Kind, "target", target, "attempt", attempt, "error", err)
	}
	return &DeliveryError{Kind: msg.Kind, Target: target, Cause: err}
}

// dispatch routes one inbound message through the idempotency window and
// the registered handlers. Handler panics are recovered: no failure may
// terminate the context's event loop.
func (r *Router) dispatch(ctx context.Context, msg Message) {
	if r.idem.IsDuplicate(msg.idemHash()) {
		r.opts.Logger.Debug("router: dropping duplicate delivery",
			"kind", msg.Kind, "origin", msg.Origin)
		return
	}

	hs := r.handlers[msg.Kind]
	if len(hs) == 0 {
		r.opts.Logger.Debug("router: no handler", "kind", msg.Kind, "at", r.origin)
		return
	}
	for _, h := range hs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.opts.Logger.Error("router: handler panic",
						"kind", msg.Kind, "at", r.origin, "panic", rec)
				}
			}()
			h(ctx, msg)
		}()
	}
}
