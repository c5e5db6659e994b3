// Package store persists captures as a bounded, newest-first list in a
// local key-value collaborator. It accepts eventual consistency rather
// than strict linearizability: the read-merge-write cycle is not atomic
// across I/O calls, and overlapping writers may lose an update. That is
// the documented tradeoff for a single-user local tool.
package store

import (
	"context"
	"sync"
)

// KV is the platform local persistent key-value collaborator.
type KV interface {
	// Get returns the value for key. ok is false when the key is absent
	// (absence is not an error).
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// Wipe deletes everything. Last-resort path of the defense-in-depth
	// clear sequence.
	Wipe(ctx context.Context) error
}

// MemKV is an in-memory KV for tests and for session-only operation.
type MemKV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailNext makes the next n operations fail with FailErr. Tests use
	// it to exercise the mirror fallback.
	FailNext int
	FailErr  error
}

// NewMemKV creates an empty in-memory KV.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) fail() error {
	if m.FailNext > 0 {
		m.FailNext--
		return m.FailErr
	}
	return nil
}

func (m *MemKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, false, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *MemKV) Wipe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.data = make(map[string][]byte)
	return nil
}
