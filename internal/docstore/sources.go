package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
)

const flagSourcesSeeded = "sources_seeded"

const sourceColumns = `id, name, url, category, last_status, last_impact, next_action, last_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (models.MonitoredSource, error) {
	var m models.MonitoredSource
	var category string
	err := r.Scan(&m.ID, &m.Name, &m.URL, &category, &m.LastStatus, &m.LastImpact,
		&m.NextAction, &m.LastDate, &m.CreatedAt, &m.UpdatedAt)
	m.Category = models.Category(category)
	return m, err
}

// ListSources returns every monitored source in insertion order.
func (s *Store) ListSources(ctx context.Context) ([]models.MonitoredSource, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sourceColumns+` FROM monitored_urls ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("docstore: list sources: %w", err)
	}
	defer rows.Close()

	out := []models.MonitoredSource{}
	for rows.Next() {
		m, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("docstore: scan source: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSource returns one source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*models.MonitoredSource, error) {
	m, err := scanSource(s.conn.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM monitored_urls WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get source: %w", err)
	}
	return &m, nil
}

// CreateSource inserts a source and assigns its id.
func (s *Store) CreateSource(ctx context.Context, m models.MonitoredSource) (*models.MonitoredSource, error) {
	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt, m.UpdatedAt = now, now

	if err := insertSource(ctx, s.conn, m); err != nil {
		return nil, err
	}
	s.committed(KindSources, "create")
	return &m, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSource(ctx context.Context, db execer, m models.MonitoredSource) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO monitored_urls (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.URL, string(m.Category), m.LastStatus, m.LastImpact,
		m.NextAction, m.LastDate, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("docstore: insert source: %w", err)
	}
	return nil
}

// UpdateSource overwrites name, url and category of an existing source.
func (s *Store) UpdateSource(ctx context.Context, id, name, url string, category models.Category) (*models.MonitoredSource, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE monitored_urls SET name = ?, url = ?, category = ?, updated_at = ?
		WHERE id = ?
	`, name, url, string(category), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("docstore: update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	s.committed(KindSources, "update")
	return s.GetSource(ctx, id)
}

// UpdateSourceStatus writes the readiness fields reported by the workflow.
func (s *Store) UpdateSourceStatus(ctx context.Context, id string, st models.SourceStatus) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE monitored_urls
		SET last_status = ?, last_impact = ?, next_action = ?, last_date = ?, updated_at = ?
		WHERE id = ?
	`, st.LastStatus, st.LastImpact, st.NextAction, st.LastDate, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("docstore: update source status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	s.committed(KindSources, "update")
	return nil
}

// DeleteSource removes a source by id.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM monitored_urls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("docstore: delete source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	s.committed(KindSources, "delete")
	return nil
}

// InsertSources writes all given sources in one transaction, unconditionally.
// Duplicate names are allowed.
func (s *Store) InsertSources(ctx context.Context, in []models.MonitoredSource) ([]models.MonitoredSource, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	out, err := insertAll(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("docstore: commit: %w", err)
	}
	s.committed(KindSources, "seed")
	return out, nil
}

// SeedDefaultsOnce writes the default sources if the collection is empty and
// it has never been seeded before. The emptiness check, the sentinel flag and
// the inserts share one transaction, so concurrent callers seed at most once.
// It reports whether this call wrote the defaults.
func (s *Store) SeedDefaultsOnce(ctx context.Context) (bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitored_urls`).Scan(&n); err != nil {
		return false, fmt.Errorf("docstore: count sources: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO store_flags (name, set_at) VALUES (?, ?)`,
		flagSourcesSeeded, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("docstore: set seed flag: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return false, nil
	}
	if _, err := insertAll(ctx, tx, models.DefaultSources); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("docstore: commit: %w", err)
	}
	s.committed(KindSources, "seed")
	return true, nil
}

func insertAll(ctx context.Context, tx *sql.Tx, in []models.MonitoredSource) ([]models.MonitoredSource, error) {
	now := time.Now().UTC()
	out := make([]models.MonitoredSource, 0, len(in))
	for _, m := range in {
		m.ID = uuid.NewString()
		m.CreatedAt, m.UpdatedAt = now, now
		if err := insertSource(ctx, tx, m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// SubscribeSources calls fn with the full source list now and after every
// change to the collection.
func (s *Store) SubscribeSources(fn func([]models.MonitoredSource)) *Subscription {
	return s.subscribe(KindSources, func(ctx context.Context, sub *Subscription) error {
		list, err := s.ListSources(ctx)
		if err != nil {
			return err
		}
		sub.guarded(func() { fn(list) })
		return nil
	})
}
