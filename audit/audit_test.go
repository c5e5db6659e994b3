package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

func testTrail(t *testing.T) *Trail {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Force single connection so the in-memory database is shared.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	trail, err := New(db, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { trail.Close() })
	return trail
}

func TestTrail_LogAndQuery(t *testing.T) {
	trail := testTrail(t)
	ctx := context.Background()

	e := trail.Record("append", "cap_1", map[string]string{"url": "https://example.com"}, nil, 42*time.Millisecond)
	e.CaptureType = "text"
	e.URL = "https://example.com"
	if err := trail.Log(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, err := trail.Query(ctx, &Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].Operation != "append" || got[0].RecordID != "cap_1" {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
	if got[0].Status != "success" {
		t.Fatalf("status = %q", got[0].Status)
	}
	if got[0].CaptureType != "text" || got[0].URL != "https://example.com" {
		t.Fatalf("domain fields lost: %+v", got[0])
	}
	if got[0].DurationMs != 42 {
		t.Fatalf("duration_ms = %d", got[0].DurationMs)
	}
}

func TestTrail_RecordError(t *testing.T) {
	trail := testTrail(t)

	e := trail.Record("capture_url", "", nil, errors.New("navigation timeout"), time.Second)
	if e.Status != "error" {
		t.Fatalf("status = %q", e.Status)
	}
	if e.ErrorMessage != "navigation timeout" {
		t.Fatalf("error_message = %q", e.ErrorMessage)
	}
	if e.EntryID == "" {
		t.Fatal("missing entry id")
	}
}

func TestTrail_AsyncDrainOnClose(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	trail, err := New(db, 16)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		trail.LogAsync(trail.Record("remove", "cap_x", nil, nil, 0))
	}
	// Close drains the buffer before returning.
	if err := trail.Close(); err != nil {
		t.Fatal(err)
	}

	// Query directly: the Trail goroutine is stopped but the handle lives.
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("got %d persisted entries, want 5", n)
	}
}

func TestTrail_QueryFilters(t *testing.T) {
	trail := testTrail(t)
	ctx := context.Background()

	ops := []string{"append", "append", "clear"}
	for _, op := range ops {
		if err := trail.Log(ctx, trail.Record(op, "", nil, nil, 0)); err != nil {
			t.Fatal(err)
		}
	}
	failed := trail.Record("capture_url", "", nil, errors.New("boom"), 0)
	if err := trail.Log(ctx, failed); err != nil {
		t.Fatal(err)
	}

	op := "append"
	got, err := trail.Query(ctx, &Filter{Operation: &op})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("operation filter: got %d, want 2", len(got))
	}

	status := "error"
	got, err = trail.Query(ctx, &Filter{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Operation != "capture_url" {
		t.Fatalf("status filter: %+v", got)
	}

	if _, err := trail.Query(ctx, &Filter{OrderDir: "sideways"}); err == nil {
		t.Fatal("expected error for invalid order_dir")
	}

	got, err = trail.Query(ctx, &Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("limit: got %d, want 2", len(got))
	}
}

func TestTrail_Cleanup(t *testing.T) {
	trail := testTrail(t)
	ctx := context.Background()

	old := trail.Record("append", "", nil, nil, 0)
	old.Timestamp = time.Now().AddDate(0, 0, -40)
	if err := trail.Log(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := trail.Log(ctx, trail.Record("append", "", nil, nil, 0)); err != nil {
		t.Fatal(err)
	}

	deleted, err := trail.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d, want 1", deleted)
	}

	got, err := trail.Query(ctx, &Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("remaining %d, want 1", len(got))
	}
}
