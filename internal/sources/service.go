// Package sources manages the monitored documentation URLs.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
)

// Store is the persistence the service needs.
type Store interface {
	ListSources(ctx context.Context) ([]models.MonitoredSource, error)
	GetSource(ctx context.Context, id string) (*models.MonitoredSource, error)
	CreateSource(ctx context.Context, m models.MonitoredSource) (*models.MonitoredSource, error)
	UpdateSource(ctx context.Context, id, name, url string, category models.Category) (*models.MonitoredSource, error)
	UpdateSourceStatus(ctx context.Context, id string, st models.SourceStatus) error
	DeleteSource(ctx context.Context, id string) error
	InsertSources(ctx context.Context, in []models.MonitoredSource) ([]models.MonitoredSource, error)
}

// Input is the editable part of a source.
type Input struct {
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Category models.Category `json:"category"`
}

func (in Input) normalized() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.Category = models.Category(strings.TrimSpace(string(in.Category)))
	if in.Category == "" {
		in.Category = models.CategoryERPs
	}
	return in
}

// Validate checks a normalized input.
func (in Input) Validate() error {
	cats := make([]any, len(models.Categories))
	for i, c := range models.Categories {
		cats[i] = c
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.URL, validation.Required),
		validation.Field(&in.Category, validation.In(cats...)),
	)
}

// CleanupResult counts the work of Cleanup.
type CleanupResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
}

// Service validates and applies source mutations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

func validate(in Input) (Input, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return in, fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
	}
	return in, nil
}

// List returns all sources in store order.
func (s *Service) List(ctx context.Context) ([]models.MonitoredSource, error) {
	return s.store.ListSources(ctx)
}

// Create validates in and writes a new source. Category defaults to ERPs.
func (s *Service) Create(ctx context.Context, in Input) (*models.MonitoredSource, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}
	return s.store.CreateSource(ctx, models.MonitoredSource{Name: in.Name, URL: in.URL, Category: in.Category})
}

// Update overwrites name, url and category. Status fields are kept.
func (s *Service) Update(ctx context.Context, id string, in Input) (*models.MonitoredSource, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateSource(ctx, id, in.Name, in.URL, in.Category)
}

// Delete removes the source with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteSource(ctx, id)
}

// UpdateStatus records the readiness fields reported for a source.
func (s *Service) UpdateStatus(ctx context.Context, id string, st models.SourceStatus) error {
	return s.store.UpdateSourceStatus(ctx, id, st)
}

// Seed writes all default sources, duplicates included.
func (s *Service) Seed(ctx context.Context) ([]models.MonitoredSource, error) {
	out, err := s.store.InsertSources(ctx, models.DefaultSources)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sources: defaults seeded", slog.Int("count", len(out)))
	return out, nil
}

// SeedMissing writes the defaults whose name is not present yet.
func (s *Service) SeedMissing(ctx context.Context) ([]models.MonitoredSource, error) {
	existing, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, src := range existing {
		have[strings.ToLower(strings.TrimSpace(src.Name))] = struct{}{}
	}

	var missing []models.MonitoredSource
	for _, d := range models.DefaultSources {
		if _, ok := have[strings.ToLower(d.Name)]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return []models.MonitoredSource{}, nil
	}
	out, err := s.store.InsertSources(ctx, missing)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sources: missing defaults seeded", slog.Int("count", len(out)))
	return out, nil
}

// Cleanup deletes sources with a blank name or url.
func (s *Service) Cleanup(ctx context.Context) (CleanupResult, error) {
	list, err := s.store.ListSources(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	res := CleanupResult{Scanned: len(list)}
	for _, src := range list {
		if strings.TrimSpace(src.Name) != "" && strings.TrimSpace(src.URL) != "" {
			continue
		}
		if err := s.store.DeleteSource(ctx, src.ID); err != nil {
			return res, fmt.Errorf("sources: cleanup %s: %w", src.ID, err)
		}
		s.logger.Info("sources: removed incomplete source", slog.String("id", src.ID))
		res.Deleted++
	}
	return res, nil
}
