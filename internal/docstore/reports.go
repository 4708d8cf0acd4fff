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

const reportColumns = `id, name, timestamp, content, status, alert_count, origin, checksum`

func scanReport(r rowScanner) (models.IntelReport, error) {
	var m models.IntelReport
	var alerts sql.NullInt64
	var origin sql.NullString
	err := r.Scan(&m.ID, &m.Name, &m.Timestamp, &m.Content, &m.Status, &alerts, &origin, &m.Checksum)
	if alerts.Valid {
		n := int(alerts.Int64)
		m.AlertCount = &n
	}
	m.Origin = origin.String
	return m, err
}

// ListReports returns every report, newest first.
func (s *Store) ListReports(ctx context.Context) ([]models.IntelReport, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM intel_reports ORDER BY timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("docstore: list reports: %w", err)
	}
	defer rows.Close()

	out := []models.IntelReport{}
	for rows.Next() {
		m, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("docstore: scan report: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetReport returns one report by id.
func (s *Store) GetReport(ctx context.Context, id string) (*models.IntelReport, error) {
	m, err := scanReport(s.conn.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM intel_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get report: %w", err)
	}
	return &m, nil
}

// CreateReport inserts a report. A zero timestamp is set to the current time.
func (s *Store) CreateReport(ctx context.Context, m models.IntelReport) (*models.IntelReport, error) {
	m.ID = uuid.NewString()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Timestamp = m.Timestamp.UTC()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO intel_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.Timestamp, m.Content, m.Status, alertValue(m.AlertCount), originValue(m.Origin), m.Checksum)
	if err != nil {
		return nil, fmt.Errorf("docstore: insert report: %w", err)
	}
	s.committed(KindReports, "create")
	return &m, nil
}

// UpsertReportByOrigin inserts a report keyed by its origin, or replaces the
// content of the report that already carries that origin.
func (s *Store) UpsertReportByOrigin(ctx context.Context, m models.IntelReport) (*models.IntelReport, error) {
	if m.Origin == "" {
		return nil, fmt.Errorf("docstore: upsert report: %w: origin is empty", apperr.ErrValidation)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Timestamp = m.Timestamp.UTC()
	m.ID = uuid.NewString()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO intel_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin) WHERE origin IS NOT NULL DO UPDATE SET
			name        = excluded.name,
			timestamp   = excluded.timestamp,
			content     = excluded.content,
			status      = excluded.status,
			alert_count = excluded.alert_count,
			checksum    = excluded.checksum
	`, m.ID, m.Name, m.Timestamp, m.Content, m.Status, alertValue(m.AlertCount), m.Origin, m.Checksum)
	if err != nil {
		return nil, fmt.Errorf("docstore: upsert report: %w", err)
	}
	s.committed(KindReports, "update")

	row := s.conn.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM intel_reports WHERE origin = ?`, m.Origin)
	out, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("docstore: reload report: %w", err)
	}
	return &out, nil
}

// OriginChecksums maps each origin-keyed report to its content checksum.
func (s *Store) OriginChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT origin, checksum FROM intel_reports WHERE origin IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("docstore: origin checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var origin, cs string
		if err := rows.Scan(&origin, &cs); err != nil {
			return nil, err
		}
		out[origin] = cs
	}
	return out, rows.Err()
}

// SubscribeReports calls fn with all reports, newest first, now and after
// every change to the collection.
func (s *Store) SubscribeReports(fn func([]models.IntelReport)) *Subscription {
	return s.subscribe(KindReports, func(ctx context.Context, sub *Subscription) error {
		list, err := s.ListReports(ctx)
		if err != nil {
			return err
		}
		sub.guarded(func() { fn(list) })
		return nil
	})
}

func alertValue(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func originValue(origin string) any {
	if origin == "" {
		return nil
	}
	return origin
}
