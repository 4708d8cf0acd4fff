// Package mirror keeps a per-session in-memory copy of the store collections,
// fully replaced on every change notification.
package mirror

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/models"
)

// Store is the subscription side of the document store.
type Store interface {
	SubscribeSources(fn func([]models.MonitoredSource)) *docstore.Subscription
	SubscribeReports(fn func([]models.IntelReport)) *docstore.Subscription
	SubscribeConfig(fn func(models.SystemConfig)) *docstore.Subscription
	SeedDefaultsOnce(ctx context.Context) (bool, error)
}

// Snapshot is a consistent copy of the mirrored state.
type Snapshot struct {
	Sources []models.MonitoredSource `json:"sources"`
	Reports []models.IntelReport     `json:"reports"`
	Config  models.SystemConfig      `json:"config"`
	Ready   bool                     `json:"ready"`
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithOnChange is called after each applied notification.
func WithOnChange(fn func(kind docstore.Kind)) Option {
	return func(m *Mirror) { m.onChange = fn }
}

// WithLogger sets the mirror logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// Mirror holds the three live collections of one session.
type Mirror struct {
	ctx      context.Context
	store    Store
	defaults models.SystemConfig
	onChange func(docstore.Kind)
	logger   *slog.Logger

	mu         sync.RWMutex
	sources    []models.MonitoredSource
	reports    []models.IntelReport
	config     models.SystemConfig
	hasSources bool
	hasReports bool
	hasConfig  bool

	subs      []*docstore.Subscription
	closeOnce sync.Once
}

// Open subscribes to all three collections. ctx bounds the bootstrap seed.
// defaults fill SystemConfig fields the store leaves empty.
func Open(ctx context.Context, store Store, defaults models.SystemConfig, opts ...Option) *Mirror {
	m := &Mirror{
		ctx:      ctx,
		store:    store,
		defaults: defaults,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.subs = []*docstore.Subscription{
		store.SubscribeSources(m.applySources),
		store.SubscribeReports(m.applyReports),
		store.SubscribeConfig(m.applyConfig),
	}
	return m
}

func (m *Mirror) applySources(list []models.MonitoredSource) {
	if len(list) == 0 {
		seeded, err := m.store.SeedDefaultsOnce(m.ctx)
		if err != nil {
			m.logger.Warn("mirror: bootstrap seed failed", slog.String("error", err.Error()))
		}
		if seeded {
			// The seed write triggers the next notification.
			return
		}
	}
	m.mu.Lock()
	m.sources = list
	m.hasSources = true
	m.mu.Unlock()
	m.changed(docstore.KindSources)
}

func (m *Mirror) applyReports(list []models.IntelReport) {
	m.mu.Lock()
	m.reports = list
	m.hasReports = true
	m.mu.Unlock()
	m.changed(docstore.KindReports)
}

func (m *Mirror) applyConfig(cfg models.SystemConfig) {
	m.mu.Lock()
	m.config = cfg
	m.hasConfig = true
	m.mu.Unlock()
	m.changed(docstore.KindConfig)
}

func (m *Mirror) changed(kind docstore.Kind) {
	if m.onChange != nil {
		m.onChange(kind)
	}
}

// Ready reports whether the first snapshot of every collection arrived.
func (m *Mirror) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasSources && m.hasReports && m.hasConfig
}

// Snapshot returns the current state. Slices are shared and must not be
// modified; every notification replaces them wholesale.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Sources: m.sources,
		Reports: m.reports,
		Config:  m.config.WithDefaults(m.defaults),
		Ready:   m.hasSources && m.hasReports && m.hasConfig,
	}
}

// Config returns the shared SystemConfig with local defaults filled in.
func (m *Mirror) Config() models.SystemConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.WithDefaults(m.defaults)
}

// Source looks a mirrored source up by id.
func (m *Mirror) Source(id string) (models.MonitoredSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sources {
		if s.ID == id {
			return s, true
		}
	}
	return models.MonitoredSource{}, false
}

// Report looks a mirrored report up by id.
func (m *Mirror) Report(id string) (models.IntelReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, true
		}
	}
	return models.IntelReport{}, false
}

// Close releases the three subscriptions. No callback runs after it returns.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		for _, s := range m.subs {
			s.Unsubscribe()
		}
	})
}
