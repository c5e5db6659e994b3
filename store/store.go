package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/webclip/capture"
)

// ErrClearInProgress rejects appends arriving during the grace period
// after a clear. Dropping a capture made in that window is an accepted
// cost of making clear terminal and unambiguous.
var ErrClearInProgress = errors.New("store: clear in progress, capture dropped")

// StorageError reports a KV failure that was absorbed by the in-memory
// mirror. Recoverable: the session's data survives, only durability is
// degraded. Callers log a warning and continue.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: falling back to memory: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Options configures a Store. Zero values mean defaults.
type Options struct {
	// Key is the KV entry holding the capture list. Default: "captures".
	Key string
	// Cap bounds the list length. Default: 100.
	Cap int
	// ClearGrace is how long after Clear new appends are rejected.
	// Default: 2s.
	ClearGrace time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
	// Now overrides the time source in tests.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Key == "" {
		o.Key = "captures"
	}
	if o.Cap <= 0 {
		o.Cap = 100
	}
	if o.ClearGrace <= 0 {
		o.ClearGrace = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Store is the bounded capture list. The background context owns the
// canonical writer; the panel reads and writes through the same
// interface, so all operations must tolerate last-write-wins overlap.
type Store struct {
	kv   KV
	opts Options

	mu            sync.Mutex
	mirror        []capture.Record // in-memory fallback of record
	clearingUntil time.Time
}

// New creates a Store over the given KV.
func New(kv KV, opts Options) *Store {
	opts.defaults()
	return &Store{kv: kv, opts: opts}
}

// Append prepends rec and trims to the cap. Read-merge-write: not atomic
// across the two KV calls. During the post-clear grace period appends
// are rejected with ErrClearInProgress. A *StorageError return means the
// record lives in the mirror only.
func (s *Store) Append(ctx context.Context, rec capture.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Now().Before(s.clearingUntil) {
		return ErrClearInProgress
	}

	list, rerr := s.readLocked(ctx)
	merged := make([]capture.Record, 0, len(list)+1)
	merged = append(merged, rec)
	merged = append(merged, list...)
	if len(merged) > s.opts.Cap {
		merged = merged[:s.opts.Cap]
	}
	return s.writeLocked(ctx, "append", merged, rerr)
}

// Replace swaps the record with the same ID for its edited successor.
// Unknown IDs are a no-op: the record may have been deleted by another
// context in the meantime.
func (s *Store) Replace(ctx context.Context, rec capture.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, rerr := s.readLocked(ctx)
	for i := range list {
		if list[i].ID == rec.ID {
			list[i] = rec
			break
		}
	}
	return s.writeLocked(ctx, "replace", list, rerr)
}

// Remove deletes the record with the given ID.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, rerr := s.readLocked(ctx)
	filtered := make([]capture.Record, 0, len(list))
	for _, r := range list {
		if r.ID != id {
			filtered = append(filtered, r)
		}
	}
	return s.writeLocked(ctx, "remove", filtered, rerr)
}

// List returns the captures newest first. When the KV read fails the
// mirror is returned together with a *StorageError: the data is valid
// for display, only freshness across contexts is degraded.
func (s *Store) List(ctx context.Context) ([]capture.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readLocked(ctx)
	out := make([]capture.Record, len(list))
	copy(out, list)
	if err != nil {
		return out, err
	}
	return out, nil
}

// Clear empties the store. Defense in depth: remove the key, write an
// explicit empty list, re-verify, and as a last resort wipe the KV;
// a single remove is not reliably observed as a delete by concurrent
// readers. Appends are rejected for the grace period so an in-flight
// capture cannot resurrect a record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearingUntil = s.opts.Now().Add(s.opts.ClearGrace)
	s.mirror = nil

	var firstErr error
	if err := s.kv.Remove(ctx, s.opts.Key); err != nil {
		firstErr = err
	}
	if err := s.kv.Set(ctx, s.opts.Key, []byte("[]")); err != nil && firstErr == nil {
		firstErr = err
	}

	// Re-verify emptiness after the writes complete.
	if v, ok, err := s.kv.Get(ctx, s.opts.Key); err == nil && ok {
		var check []capture.Record
		if jerr := json.Unmarshal(v, &check); jerr != nil || len(check) > 0 {
			s.opts.Logger.Warn("store: clear verification failed, wiping storage")
			if err := s.kv.Wipe(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return &StorageError{Op: "clear", Cause: firstErr}
	}
	return nil
}

// readLocked loads the list from the KV, refreshing the mirror on
// success and serving the mirror on failure. Caller holds s.mu.
func (s *Store) readLocked(ctx context.Context) ([]capture.Record, error) {
	v, ok, err := s.kv.Get(ctx, s.opts.Key)
	if err != nil {
		s.opts.Logger.Warn("store: read failed, serving mirror", "error", err)
		return s.mirror, &StorageError{Op: "read", Cause: err}
	}
	if !ok {
		s.mirror = nil
		return nil, nil
	}
	var list []capture.Record
	if err := json.Unmarshal(v, &list); err != nil {
		s.opts.Logger.Warn("store: corrupt list, serving mirror", "error", err)
		return s.mirror, &StorageError{Op: "decode", Cause: err}
	}
	s.mirror = list
	return list, nil
}

// writeLocked persists the list and updates the mirror. A KV failure
// keeps the new list in the mirror and reports a recoverable
// *StorageError. Caller holds s.mu.
func (s *Store) writeLocked(ctx context.Context, op string, list []capture.Record, readErr error) error {
	s.mirror = list

	b, err := json.Marshal(list)
	if err != nil {
		return &StorageError{Op: op + " encode", Cause: err}
	}
	if err := s.kv.Set(ctx, s.opts.Key, b); err != nil {
		s.opts.Logger.Warn("store: write failed, keeping mirror", "op", op, "error", err)
		return &StorageError{Op: op, Cause: err}
	}
	if readErr != nil {
		// The write landed but it was based on the mirror, not the KV
		// truth. Surface the degraded read so callers can log it.
		return readErr
	}
	return nil
}

// Len returns the current list length (mirror-consistent).
func (s *Store) Len(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, _ := s.readLocked(ctx)
	return len(list)
}
