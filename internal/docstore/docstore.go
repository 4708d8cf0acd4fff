// Package docstore is the SQLite-backed document store behind the dashboard.
// It holds the monitored_urls and intel_reports collections and the singleton
// system_config document, and notifies subscribers after every committed write.
package docstore

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitored_urls (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT 'ERPs',
	last_status TEXT NOT NULL DEFAULT '',
	last_impact TEXT NOT NULL DEFAULT '',
	next_action TEXT NOT NULL DEFAULT '',
	last_date   TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS intel_reports (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	timestamp   DATETIME NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	alert_count INTEGER,
	origin      TEXT,
	checksum    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON intel_reports(timestamp DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_origin ON intel_reports(origin) WHERE origin IS NOT NULL;

CREATE TABLE IF NOT EXISTS system_config (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	revision   INTEGER NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS store_flags (
	name   TEXT PRIMARY KEY,
	set_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// WriteHook is called after every committed write with the collection name and
// the operation ("create", "update", "delete", "seed", "merge").
type WriteHook func(collection, op string)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for change-feed errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithWriteHook registers a callback run after each committed write.
func WithWriteHook(h WriteHook) Option {
	return func(s *Store) { s.hook = h }
}

// Store wraps a sql.DB with collection operations and a change feed.
type Store struct {
	conn   *sql.DB
	feed   *feed
	logger *slog.Logger
	hook   WriteHook
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: apply schema: %w", err)
	}

	s := &Store{conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.feed = newFeed()
	return s, nil
}

// DB exposes the underlying connection so sibling packages (auth) can keep
// their tables in the same database file.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Close stops the change feed, ends every subscription and closes the database.
func (s *Store) Close() error {
	s.feed.close()
	return s.conn.Close()
}

func (s *Store) committed(kind Kind, op string) {
	if s.hook != nil {
		s.hook(string(kind), op)
	}
	s.feed.publish(kind)
}
