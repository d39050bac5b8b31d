// Package journal persists an audit trail of event lifecycle changes in
// SQLite or Postgres. The in-memory watchlist stays authoritative; the journal is
// write-only during a run and read by operators afterwards.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// ErrNotFound is returned by Latest when an event was never recorded.
var ErrNotFound = errors.New("journal: event not found")

// Entry is one recorded change.
type Entry struct {
	Seq     int64                `json:"seq"`
	EventID string               `json:"event_id"`
	Change  protocol.EventChange `json:"change"`
	Status  protocol.EventStatus `json:"status"`
	At      time.Time            `json:"at"`
	Event   protocol.Event       `json:"event"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	EventID string
	Change  protocol.EventChange
	Limit   int
}

// Store is a SQL-backed journal (SQLite or Postgres).
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	closeFn func()
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Open opens (or creates) the SQLite journal database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: wal: %w", err)
	}
	return newStore(db, dialectSQLite, nil)
}

// OpenPostgres connects a pgx pool to dsn and migrates the journal schema.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	return newStore(stdlib.OpenDBFromPool(pool), dialectPostgres, pool.Close)
}

func newStore(db *sql.DB, d dialect, closeFn func()) (*Store, error) {
	s := &Store{db: db, dialect: d, now: time.Now, closeFn: closeFn}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == dialectPostgres {
		seq = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_changes (
			seq      ` + seq + `,
			event_id TEXT NOT NULL,
			change   TEXT NOT NULL,
			status   TEXT NOT NULL,
			source   TEXT NOT NULL,
			url      TEXT NOT NULL,
			data     TEXT NOT NULL,
			at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_event ON event_changes(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_change ON event_changes(change)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("journal: migrate: %w", err)
		}
	}
	return nil
}

// bind rewrites ? placeholders to $n for Postgres.
func (s *Store) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record appends a change for ev. It satisfies watchlist.Journal.
func (s *Store) Record(ev protocol.Event, change protocol.EventChange) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	_, err = s.db.Exec(s.bind(`
		INSERT INTO event_changes (event_id, change, status, source, url, data, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), ev.ID, string(change), string(ev.Status), string(ev.Source), ev.URL, string(data),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (s *Store) List(f Filter) ([]Entry, error) {
	query := `SELECT seq, event_id, change, status, data, at FROM event_changes WHERE 1=1`
	var args []any
	if f.EventID != "" {
		query += ` AND event_id = ?`
		args = append(args, f.EventID)
	}
	if f.Change != "" {
		query += ` AND change = ?`
		args = append(args, string(f.Change))
	}
	query += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest returns the most recent recorded state of an event.
func (s *Store) Latest(eventID string) (protocol.Event, error) {
	entries, err := s.List(Filter{EventID: eventID, Limit: 1})
	if err != nil {
		return protocol.Event{}, err
	}
	if len(entries) == 0 {
		return protocol.Event{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	return entries[0].Event, nil
}

// Close closes the database.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e            Entry
		change, stat string
		data, at     string
	)
	if err := rows.Scan(&e.Seq, &e.EventID, &change, &stat, &data, &at); err != nil {
		return Entry{}, fmt.Errorf("journal: scan: %w", err)
	}
	e.Change = protocol.EventChange(change)
	e.Status = protocol.EventStatus(stat)
	if err := json.Unmarshal([]byte(data), &e.Event); err != nil {
		return Entry{}, fmt.Errorf("journal: decode %d: %w", e.Seq, err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: time %d: %w", e.Seq, err)
	}
	e.At = t
	return e, nil
}
