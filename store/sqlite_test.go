package store

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/hazyhaar/webclip/capture"
)

func testSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Force single connection so the in-memory database is shared.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	kv := NewSQLiteKV(db)
	if err := kv.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return kv
}

func TestSQLiteKV_RoundTrip(t *testing.T) {
	kv := testSQLiteKV(t)
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "captures"); err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}

	if err := kv.Set(ctx, "captures", []byte(`[{"id":"r1"}]`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := kv.Get(ctx, "captures")
	if err != nil || !ok {
		t.Fatalf("get after set: ok=%v err=%v", ok, err)
	}
	if string(v) != `[{"id":"r1"}]` {
		t.Fatalf("got %q", v)
	}

	// Upsert overwrites.
	if err := kv.Set(ctx, "captures", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	v, _, _ = kv.Get(ctx, "captures")
	if string(v) != `[]` {
		t.Fatalf("after upsert: %q", v)
	}

	if err := kv.Remove(ctx, "captures"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(ctx, "captures"); ok {
		t.Fatal("key must be gone after remove")
	}
}

func TestSQLiteKV_Wipe(t *testing.T) {
	kv := testSQLiteKV(t)
	ctx := context.Background()

	kv.Set(ctx, "a", []byte("1"))
	kv.Set(ctx, "b", []byte("2"))
	if err := kv.Wipe(ctx); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok, _ := kv.Get(ctx, k); ok {
			t.Fatalf("key %q survived wipe", k)
		}
	}
}

func TestStore_OverSQLite(t *testing.T) {
	kv := testSQLiteKV(t)
	s := New(kv, Options{Cap: 2})
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := s.Append(ctx, capture.Record{
			ID: id, Type: capture.TypeText, Content: "c",
			Title: "t", URL: "https://example.com",
		}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "r3" || list[1].ID != "r2" {
		t.Fatalf("got %v", ids(list))
	}
}
