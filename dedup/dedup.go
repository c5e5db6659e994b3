// Package dedup implements a time-windowed content-hash filter.
//
// The pipeline deploys three independent instances: the page agent
// suppresses double DOM events (1s window), the background worker
// suppresses duplicate message deliveries (5s) and store-level repeats
// (10s), and the panel suppresses duplicate renders (5s). The instances
// share no state: each guards a different redundancy source.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/webclip/capture"
)

// Window presets observed at the three deployment points.
const (
	WindowPage    = 1 * time.Second
	WindowMessage = 5 * time.Second
	WindowStore   = 10 * time.Second
)

// hashPrefixLen bounds how much normalized content feeds the hash.
// Enough to discriminate real captures, cheap for megabyte payloads.
const hashPrefixLen = 256

// Filter is a check-and-set duplicate detector. Not a pure predicate:
// a miss records the hash as seen.
type Filter struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock overrides the time source. Tests use this to step through
// the window deterministically.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New creates a Filter with the given suppression window.
func New(window time.Duration, opts ...Option) *Filter {
	f := &Filter{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// IsDuplicate reports whether hash was seen within the window, and
// records it as seen if not. Entries older than the window are evicted
// lazily on each call, with no background sweep goroutine.
func (f *Filter) IsDuplicate(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-f.window)
	for h, at := range f.seen {
		if at.Before(cutoff) {
			delete(f.seen, h)
		}
	}

	if _, ok := f.seen[hash]; ok {
		return true
	}
	f.seen[hash] = now
	return false
}

// Len returns the number of live entries. Intended for tests and
// diagnostics.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Reset drops all entries.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]time.Time)
}

// Hash derives the canonical dedup hash for a capture: type, source URL
// (may be empty) and a normalized prefix of the content. Two captures of
// the same text from the same page hash identically regardless of
// whitespace differences.
func Hash(t capture.Type, url, content string) string {
	norm := normalize(content)
	if len(norm) > hashPrefixLen {
		norm = norm[:hashPrefixLen]
	}
	h := sha256.Sum256([]byte(string(t) + "\x00" + url + "\x00" + norm))
	return hex.EncodeToString(h[:16])
}

// HashRecord derives the dedup hash for a capture record.
func HashRecord(r capture.Record) string {
	return Hash(r.Type, r.URL, r.Content)
}

// normalize collapses runs of whitespace to single spaces and trims.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
