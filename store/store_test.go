package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/webclip/capture"
)

func rec(id, content string) capture.Record {
	return capture.Record{
		ID:        id,
		Type:      capture.TypeText,
		Content:   content,
		Title:     "Test Page",
		URL:       "https://example.com",
		Timestamp: time.Now(),
	}
}

func newTestStore(opts Options) (*Store, *MemKV) {
	kv := NewMemKV()
	return New(kv, opts), kv
}

func TestAppend_NewestFirst(t *testing.T) {
	s, _ := newTestStore(Options{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Append(ctx, rec(fmt.Sprintf("r%d", i), "c")); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != "r3" || list[2].ID != "r1" {
		t.Fatalf("order wrong: %+v", ids(list))
	}
}

func TestAppend_CapTrimsOldest(t *testing.T) {
	s, _ := newTestStore(Options{Cap: 3})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, rec(fmt.Sprintf("r%d", i), "c")); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("cap: got %d, want 3", len(list))
	}
	if list[0].ID != "r5" || list[2].ID != "r3" {
		t.Fatalf("trim kept wrong records: %v", ids(list))
	}
}

func TestAppend_RejectsInvalidRecord(t *testing.T) {
	s, _ := newTestStore(Options{})
	bad := rec("r1", "not-a-data-uri")
	bad.Type = capture.TypeScreenshot
	if err := s.Append(context.Background(), bad); err == nil {
		t.Fatal("invalid screenshot record must be rejected")
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(Options{})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "a"))
	s.Append(ctx, rec("r2", "b"))
	if err := s.Remove(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != "r2" {
		t.Fatalf("got %v", ids(list))
	}
}

func TestReplace_EditByID(t *testing.T) {
	s, _ := newTestStore(Options{})
	ctx := context.Background()

	orig := rec("r1", "original")
	s.Append(ctx, orig)

	edited := orig.Merge("edited content", "New Title", map[string]any{"edited": true})
	if err := s.Replace(ctx, edited); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx)
	if list[0].Content != "edited content" || list[0].Title != "New Title" {
		t.Fatalf("edit lost: %+v", list[0])
	}
	if list[0].ID != "r1" {
		t.Fatal("replace must keep the id")
	}
}

func TestReplace_UnknownIDNoOp(t *testing.T) {
	s, _ := newTestStore(Options{})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "a"))
	if err := s.Replace(ctx, rec("ghost", "b")); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != "r1" {
		t.Fatalf("got %v", ids(list))
	}
}

func TestClear_EmptiesStore(t *testing.T) {
	s, _ := newTestStore(Options{})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "a"))
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("clear must leave an empty list, got %v", ids(list))
	}
}

func TestClear_GracePeriodBlocksAppends(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	s, _ := newTestStore(Options{
		ClearGrace: 2 * time.Second,
		Now:        func() time.Time { return clock },
	})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "a"))
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	// A pending append racing the clear must not resurrect a record.
	if err := s.Append(ctx, rec("r2", "late")); !errors.Is(err, ErrClearInProgress) {
		t.Fatalf("got %v, want ErrClearInProgress", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 0 {
		t.Fatalf("final state after clear must be empty, got %v", ids(list))
	}

	clock = clock.Add(3 * time.Second)
	if err := s.Append(ctx, rec("r3", "fresh")); err != nil {
		t.Fatalf("append after grace: %v", err)
	}
}

// stubbornKV ignores Remove and Set("[]") so Clear has to fall through
// to Wipe.
type stubbornKV struct {
	*MemKV
	wiped bool
}

func (s *stubbornKV) Remove(ctx context.Context, key string) error { return nil }
func (s *stubbornKV) Set(ctx context.Context, key string, value []byte) error {
	if string(value) == "[]" {
		return nil
	}
	return s.MemKV.Set(ctx, key, value)
}
func (s *stubbornKV) Wipe(ctx context.Context) error {
	s.wiped = true
	return s.MemKV.Wipe(ctx)
}

func TestClear_DefenseInDepthWipes(t *testing.T) {
	kv := &stubbornKV{MemKV: NewMemKV()}
	s := New(kv, Options{})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "a"))
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if !kv.wiped {
		t.Fatal("clear must escalate to wipe when the key survives")
	}
}

func TestMirrorFallback_SurvivesKVOutage(t *testing.T) {
	s, kv := newTestStore(Options{})
	ctx := context.Background()

	s.Append(ctx, rec("r1", "safe"))

	// Next three KV operations fail: the read and write inside Append,
	// then the read inside List.
	kv.FailErr = errors.New("disk detached")
	kv.FailNext = 3

	err := s.Append(ctx, rec("r2", "session-only"))
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want StorageError", err)
	}

	list, err := s.List(ctx)
	if !errors.As(err, &serr) {
		t.Fatalf("list during outage: got %v, want StorageError", err)
	}
	// The session's data is served from the mirror.
	if len(list) == 0 || list[0].ID != "r2" {
		t.Fatalf("mirror must hold the session's captures, got %v", ids(list))
	}
}

func TestList_EmptyStore(t *testing.T) {
	s, _ := newTestStore(Options{})
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("got %v", ids(list))
	}
}

func ids(list []capture.Record) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
