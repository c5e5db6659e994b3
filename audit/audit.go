// Package audit keeps a queryable trail of capture operations in SQLite.
//
// The trail shares the capture store's database handle and writes
// asynchronously: entries are buffered in memory and flushed in batches,
// so a slow disk never stalls a capture. If the buffer fills, the logger
// falls back to a synchronous insert rather than dropping the entry.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/webclip/idgen"
)

// Entry is a single operation record in the audit trail.
type Entry struct {
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"` // e.g. "append", "remove", "clear", "capture_url"

	RecordID    string `json:"record_id,omitempty"` // capture record involved, if any
	CaptureType string `json:"capture_type,omitempty"`
	URL         string `json:"url,omitempty"`

	Status       string `json:"status"` // "success" or "error"
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Detail       string `json:"detail,omitempty"` // free-form JSON
}

// Filter controls query results from the trail.
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time
	Operation *string
	Status    *string
	Limit     int // default 100
	Offset    int
	OrderDir  string // "ASC" or "DESC", default DESC
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    operation     TEXT NOT NULL,
    record_id     TEXT,
    capture_type  TEXT,
    url           TEXT,
    status        TEXT NOT NULL,
    error_message TEXT,
    duration_ms   INTEGER,
    detail        TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);`

// Trail persists operation entries asynchronously over a shared handle.
type Trail struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Trail.
type Option func(*Trail)

// WithIDGenerator sets a custom ID generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(t *Trail) { t.newID = gen }
}

// New creates an async audit trail and ensures its schema.
// Recommended bufferSize: 1000.
func New(db *sql.DB, bufferSize int, opts ...Option) (*Trail, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	t := &Trail{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	go t.flushLoop()
	return t, nil
}

// Log inserts an entry synchronously.
func (t *Trail) Log(ctx context.Context, e *Entry) error {
	t.fillDefaults(e)
	return t.insert(ctx, e)
}

// LogAsync queues an entry for async persistence.
// Falls back to synchronous insert if the buffer is full.
func (t *Trail) LogAsync(e *Entry) {
	t.fillDefaults(e)
	select {
	case t.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "operation", e.Operation)
		if err := t.insert(context.Background(), e); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Record builds an Entry from an operation's outcome. Detail is
// marshalled to JSON when non-nil.
func (t *Trail) Record(operation, recordID string, detail any, err error, duration time.Duration) *Entry {
	e := &Entry{
		EntryID:    t.newID(),
		Timestamp:  time.Now(),
		Operation:  operation,
		RecordID:   recordID,
		DurationMs: duration.Milliseconds(),
	}
	if detail != nil {
		if b, me := json.Marshal(detail); me == nil {
			e.Detail = string(b)
		}
	}
	if err != nil {
		e.Status = "error"
		e.ErrorMessage = err.Error()
	} else {
		e.Status = "success"
	}
	return e
}

// Query retrieves entries matching the given filter, newest first by
// default.
func (t *Trail) Query(ctx context.Context, f *Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, operation, record_id, capture_type,
		url, status, error_message, duration_ms, detail
		FROM audit_log WHERE 1=1`
	var args []any

	if f.StartTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.StartTime.Unix())
	}
	if f.EndTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, f.EndTime.Unix())
	}
	if f.Operation != nil {
		q += " AND operation = ?"
		args = append(args, *f.Operation)
	}
	if f.Status != nil {
		q += " AND status = ?"
		args = append(args, *f.Status)
	}

	orderDir := "DESC"
	if f.OrderDir != "" {
		switch strings.ToUpper(f.OrderDir) {
		case "ASC", "DESC":
			orderDir = strings.ToUpper(f.OrderDir)
		default:
			return nil, fmt.Errorf("audit: invalid order_dir: %q", f.OrderDir)
		}
	}
	q += " ORDER BY timestamp " + orderDir

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " LIMIT ?"
	args = append(args, limit)
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var recordID, captureType, url sql.NullString
		var errorMessage, detail sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&e.EntryID, &ts, &e.Operation,
			&recordID, &captureType, &url,
			&e.Status, &errorMessage, &durationMs, &detail,
		); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}

		e.Timestamp = time.Unix(ts, 0)
		e.RecordID = recordID.String
		e.CaptureType = captureType.String
		e.URL = url.String
		e.ErrorMessage = errorMessage.String
		if durationMs.Valid {
			e.DurationMs = durationMs.Int64
		}
		e.Detail = detail.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retentionDays.
func (t *Trail) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := t.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return result.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine. The shared
// database handle is left open for its owner to close.
func (t *Trail) Close() error {
	close(t.stop)
	<-t.done
	return nil
}

func (t *Trail) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = t.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (t *Trail) flushLoop() {
	defer close(t.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*Entry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := t.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("audit: begin tx", "error", err)
			return
		}
		stmt, err := tx.PrepareContext(ctx, insertStmt)
		if err != nil {
			tx.Rollback()
			slog.Error("audit: prepare", "error", err)
			return
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx,
				e.EntryID, e.Timestamp.Unix(), e.Operation,
				e.RecordID, e.CaptureType, e.URL,
				e.Status, e.ErrorMessage, e.DurationMs, e.Detail,
			); err != nil {
				slog.Error("audit: insert", "error", err, "entry_id", e.EntryID)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("audit: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-t.stop:
			// drain channel
			for {
				select {
				case e := <-t.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-t.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertStmt = `INSERT INTO audit_log
	(entry_id, timestamp, operation, record_id, capture_type, url,
	 status, error_message, duration_ms, detail)
	VALUES (?,?,?,?,?,?,?,?,?,?)`

func (t *Trail) insert(ctx context.Context, e *Entry) error {
	_, err := t.db.ExecContext(ctx, insertStmt,
		e.EntryID, e.Timestamp.Unix(), e.Operation,
		e.RecordID, e.CaptureType, e.URL,
		e.Status, e.ErrorMessage, e.DurationMs, e.Detail)
	return err
}
