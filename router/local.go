package router

import (
	"context"
	"log/slog"
	"sync"
)

// Fate decides what the bus does with one delivery. Tests inject fates
// to simulate the at-most-once transport misbehaving.
type Fate int

const (
	FateDeliver Fate = iota
	FateDrop
	FateDuplicate
)

// BusOptions configures a LocalBus.
type BusOptions struct {
	// QueueSize is each context's inbox capacity. A full inbox drops
	// the message; the transport is at-most-once. Default: 64.
	QueueSize int
	// Tap, when set, decides the fate of every delivery. Tests use it
	// to simulate dropped and duplicated messages explicitly.
	Tap func(target Origin, msg Message) Fate
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *BusOptions) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// inbox is one context's serial delivery queue. A single worker drains
// it, preserving the context's single-threaded event loop model.
type inbox struct {
	ch     chan Message
	done   chan struct{}
	closed sync.Once
}

// LocalBus is the in-process Transport used by the daemon and by tests.
// Each attached origin gets a serial inbox; delivery is asynchronous,
// unordered across origins, and at-most-once.
type LocalBus struct {
	opts BusOptions

	mu      sync.RWMutex
	inboxes map[Origin]*inbox
}

// NewLocalBus creates a bus with no attached contexts.
func NewLocalBus(opts BusOptions) *LocalBus {
	opts.defaults()
	return &LocalBus{opts: opts, inboxes: make(map[Origin]*inbox)}
}

// OnMessage attaches a context's handler, replacing any previous one.
// The worker goroutine runs until Detach or Close.
func (b *LocalBus) OnMessage(origin Origin, handler func(ctx context.Context, msg Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.inboxes[origin]; ok {
		old.closed.Do(func() { close(old.done) })
	}

	in := &inbox{
		ch:   make(chan Message, b.opts.QueueSize),
		done: make(chan struct{}),
	}
	b.inboxes[origin] = in

	go func() {
		for {
			select {
			case <-in.done:
				return
			case msg := <-in.ch:
				handler(context.Background(), msg)
			}
		}
	}()
}

// Detach removes a context from the bus; subsequent sends to it fail
// with ErrNoReceiver. Models the panel being closed.
func (b *LocalBus) Detach(origin Origin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if in, ok := b.inboxes[origin]; ok {
		in.closed.Do(func() { close(in.done) })
		delete(b.inboxes, origin)
	}
}

// Send enqueues msg for target. Returns ErrNoReceiver when the target is
// not attached. A full inbox silently drops the message: delivery is
// best-effort, at most once.
func (b *LocalBus) Send(ctx context.Context, target Origin, msg Message) error {
	b.mu.RLock()
	in, ok := b.inboxes[target]
	b.mu.RUnlock()
	if !ok {
		return ErrNoReceiver
	}

	fate := FateDeliver
	if b.opts.Tap != nil {
		fate = b.opts.Tap(target, msg)
	}

	switch fate {
	case FateDrop:
		return nil
	case FateDuplicate:
		b.enqueue(in, target, msg)
		b.enqueue(in, target, msg)
	default:
		b.enqueue(in, target, msg)
	}
	return nil
}

func (b *LocalBus) enqueue(in *inbox, target Origin, msg Message) {
	select {
	case in.ch <- msg:
	default:
		b.opts.Logger.Warn("bus: inbox full, dropping message",
			"target", target, "kind", msg.Kind)
	}
}

// Close detaches every context.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for origin, in := range b.inboxes {
		in.closed.Do(func() { close(in.done) })
		delete(b.inboxes, origin)
	}
}
