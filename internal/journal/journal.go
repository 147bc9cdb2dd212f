package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"peerctl/internal/model"
)

const DefaultLimit = 100

// Journal is an append-only SQLite log of registry mutations and daemon outcomes.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal database: %w", err)
	}
	return j, nil
}

func (j *Journal) initDB() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			peer TEXT,
			address TEXT,
			outcome TEXT,
			detail TEXT,
			duration_ns INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	`)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends ev. It matches the event bus subscriber signature.
func (j *Journal) Record(ev model.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO events (timestamp, kind, peer, address, outcome, detail, duration_ns) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UnixNano(), ev.Kind, ev.Peer, ev.Address, ev.Outcome, ev.Detail, int64(ev.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns the newest events first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return j.query(ctx,
		`SELECT timestamp, kind, peer, address, outcome, detail, duration_ns FROM events ORDER BY id DESC LIMIT ?`,
		limit)
}

// Since returns the events at or after t, oldest first.
func (j *Journal) Since(ctx context.Context, t time.Time) ([]model.Event, error) {
	return j.query(ctx,
		`SELECT timestamp, kind, peer, address, outcome, detail, duration_ns FROM events WHERE timestamp >= ? ORDER BY id ASC`,
		t.UnixNano())
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			ts, dur                     int64
			peer, addr, outcome, detail sql.NullString
			ev                          model.Event
		)
		if err := rows.Scan(&ts, &ev.Kind, &peer, &addr, &outcome, &detail, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		ev.Peer = peer.String
		ev.Address = addr.String
		ev.Outcome = outcome.String
		ev.Detail = detail.String
		ev.Duration = time.Duration(dur)
		out = append(out, ev)
	}
	return out, rows.Err()
}
