package router

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collector accumulates delivered messages behind a mutex and signals
// arrivals on a channel.
type collector struct {
	mu      sync.Mutex
	msgs    []Message
	arrived chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 64)}
}

func (c *collector) handle(ctx context.Context, msg Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.arrived <- struct{}{}
}

func (c *collector) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestLocalBus_DeliverToAttached(t *testing.T) {
	bus := NewLocalBus(BusOptions{})
	defer bus.Close()

	col := newCollector()
	bus.OnMessage(OriginBackground, col.handle)

	m, _ := NewMessage(KindTestPing, OriginPage, "hello", nil)
	if err := bus.Send(context.Background(), OriginBackground, m); err != nil {
		t.Fatal(err)
	}
	col.waitN(t, 1)
	if col.msgs[0].Kind != KindTestPing {
		t.Fatalf("got %+v", col.msgs[0])
	}
}

func TestLocalBus_NoReceiver(t *testing.T) {
	bus := NewLocalBus(BusOptions{})
	defer bus.Close()

	m, _ := NewMessage(KindTestPing, OriginPage, "hello", nil)
	if err := bus.Send(context.Background(), OriginPanel, m); err != ErrNoReceiver {
		t.Fatalf("got %v, want ErrNoReceiver", err)
	}
}

func TestLocalBus_DetachStopsDelivery(t *testing.T) {
	bus := NewLocalBus(BusOptions{})
	defer bus.Close()

	col := newCollector()
	bus.OnMessage(OriginPanel, col.handle)
	bus.Detach(OriginPanel)

	m, _ := NewMessage(KindTestPing, OriginBackground, "x", nil)
	if err := bus.Send(context.Background(), OriginPanel, m); err != ErrNoReceiver {
		t.Fatalf("got %v, want ErrNoReceiver", err)
	}
}

func TestLocalBus_TapDrop(t *testing.T) {
	bus := NewLocalBus(BusOptions{
		Tap: func(target Origin, msg Message) Fate { return FateDrop },
	})
	defer bus.Close()

	col := newCollector()
	bus.OnMessage(OriginBackground, col.handle)

	m, _ := NewMessage(KindTestPing, OriginPage, "x", nil)
	// Dropped in transit: Send still reports success (at-most-once).
	if err := bus.Send(context.Background(), OriginBackground, m); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if col.count() != 0 {
		t.Fatalf("dropped message must not arrive, got %d", col.count())
	}
}

func TestLocalBus_TapDuplicate(t *testing.T) {
	bus := NewLocalBus(BusOptions{
		Tap: func(target Origin, msg Message) Fate { return FateDuplicate },
	})
	defer bus.Close()

	col := newCollector()
	bus.OnMessage(OriginBackground, col.handle)

	m, _ := NewMessage(KindTestPing, OriginPage, "x", nil)
	if err := bus.Send(context.Background(), OriginBackground, m); err != nil {
		t.Fatal(err)
	}
	col.waitN(t, 2)
	if col.count() != 2 {
		t.Fatalf("duplicated delivery: got %d, want 2", col.count())
	}
}

func TestLocalBus_ReattachReplacesHandler(t *testing.T) {
	bus := NewLocalBus(BusOptions{})
	defer bus.Close()

	old := newCollector()
	bus.OnMessage(OriginPanel, old.handle)

	fresh := newCollector()
	bus.OnMessage(OriginPanel, fresh.handle)

	m, _ := NewMessage(KindTestPing, OriginBackground, "x", nil)
	if err := bus.Send(context.Background(), OriginPanel, m); err != nil {
		t.Fatal(err)
	}
	fresh.waitN(t, 1)
	if old.count() != 0 {
		t.Fatal("stale handler must not receive after reattach")
	}
}
