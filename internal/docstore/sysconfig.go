package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
)

// AnyRevision disables the revision check in MergeConfig.
const AnyRevision int64 = -1

// GetConfig returns the stored system configuration. A store that was never
// written returns the zero value with revision 0.
func (s *Store) GetConfig(ctx context.Context) (models.SystemConfig, error) {
	return getConfig(ctx, s.conn)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getConfig(ctx context.Context, db queryer) (models.SystemConfig, error) {
	var (
		cfg     models.SystemConfig
		rev     int64
		data    string
		updated time.Time
	)
	err := db.QueryRowContext(ctx, `SELECT revision, data, updated_at FROM system_config WHERE id = 1`).
		Scan(&rev, &data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("docstore: get config: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return cfg, fmt.Errorf("docstore: decode config: %w", err)
	}
	cfg.Revision = rev
	cfg.UpdatedAt = updated
	return cfg, nil
}

// MergeConfig writes the non-nil fields of patch over the stored config and
// bumps the revision. If ifRevision is not AnyRevision and differs from the
// stored revision, nothing is written and apperr.ErrConflict is returned.
func (s *Store) MergeConfig(ctx context.Context, patch models.ConfigPatch, ifRevision int64) (models.SystemConfig, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.SystemConfig{}, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	cur, err := getConfig(ctx, tx)
	if err != nil {
		return models.SystemConfig{}, err
	}
	if ifRevision != AnyRevision && ifRevision != cur.Revision {
		return cur, fmt.Errorf("docstore: config revision %d, expected %d: %w", cur.Revision, ifRevision, apperr.ErrConflict)
	}

	next := patch.Apply(cur)
	next.Revision = cur.Revision + 1
	next.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(configDoc(next))
	if err != nil {
		return models.SystemConfig{}, fmt.Errorf("docstore: encode config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO system_config (id, revision, data, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			revision   = excluded.revision,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, next.Revision, string(data), next.UpdatedAt)
	if err != nil {
		return models.SystemConfig{}, fmt.Errorf("docstore: write config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SystemConfig{}, fmt.Errorf("docstore: commit: %w", err)
	}
	s.committed(KindConfig, "merge")
	return next, nil
}

// configDocument is the persisted JSON body; revision and timestamp live in columns.
type configDocument struct {
	IsPaused              bool             `json:"is_paused"`
	Frequency             models.Frequency `json:"frequency,omitempty"`
	GHPAT                 string           `json:"gh_pat,omitempty"`
	GHRepo                string           `json:"gh_repo,omitempty"`
	IntelligenceFreshness models.Freshness `json:"intelligence_freshness,omitempty"`
}

func configDoc(c models.SystemConfig) configDocument {
	return configDocument{
		IsPaused:              c.IsPaused,
		Frequency:             c.Frequency,
		GHPAT:                 c.GHPAT,
		GHRepo:                c.GHRepo,
		IntelligenceFreshness: c.IntelligenceFreshness,
	}
}

// SubscribeConfig calls fn with the current config now and after every write.
func (s *Store) SubscribeConfig(fn func(models.SystemConfig)) *Subscription {
	return s.subscribe(KindConfig, func(ctx context.Context, sub *Subscription) error {
		cfg, err := s.GetConfig(ctx)
		if err != nil {
			return err
		}
		sub.guarded(func() { fn(cfg) })
		return nil
	})
}
