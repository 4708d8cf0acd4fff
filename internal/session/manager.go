// Package session owns authenticated operator sessions and the per-session
// resources they hold.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/auth"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/export"
	"github.com/starford/intelboard/internal/mirror"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/sse"
	"github.com/starford/intelboard/internal/status"
	"github.com/starford/intelboard/internal/workflow"
)

// Provider is the identity provider.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (string, auth.Identity, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (auth.Identity, error)
	Subscribe(fn func(auth.Change)) func()
}

// Store is what a session reads and writes through its mirror and panel.
type Store interface {
	mirror.Store
	workflow.ConfigStore
}

// Exporter renders reports to PDF.
type Exporter interface {
	Export(ctx context.Context, r models.IntelReport) (export.Document, error)
}

// Config holds the per-session timings.
type Config struct {
	DispatchReset   time.Duration
	ToggleReset     time.Duration
	ExportReset     time.Duration
	RefreshThrottle time.Duration
	SweepInterval   time.Duration
}

// Deps are the shared components every session is built from.
type Deps struct {
	Store    Store
	CI       workflow.CI
	Exporter Exporter
	Defaults models.SystemConfig
	Config   Config

	// OnActiveChange receives the number of open sessions after each change.
	OnActiveChange func(n int)
	// OnWorkflowResult receives workflow action outcomes.
	OnWorkflowResult func(action, result string)
	Logger           *slog.Logger
}

// Manager maps auth-state changes to session lifetimes. It subscribes to the
// provider once, at construction.
type Manager struct {
	provider Provider
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time

	unsubscribe func()

	mu       sync.Mutex
	sessions map[string]*Session
	// ended holds ids of sessions that were closed, until their token
	// expires; open refuses them.
	ended  map[string]time.Time
	closed bool
}

// NewManager creates a Manager and subscribes it to provider.
func NewManager(provider Provider, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.ExportReset <= 0 {
		deps.Config.ExportReset = 3 * time.Second
	}
	if deps.Config.DispatchReset <= 0 {
		deps.Config.DispatchReset = 5 * time.Second
	}
	if deps.Config.ToggleReset <= 0 {
		deps.Config.ToggleReset = deps.Config.DispatchReset
	}
	if deps.Config.SweepInterval <= 0 {
		deps.Config.SweepInterval = time.Minute
	}
	m := &Manager{
		provider: provider,
		deps:     deps,
		logger:   deps.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		ended:    make(map[string]time.Time),
	}
	m.unsubscribe = provider.Subscribe(m.onAuthChange)
	return m
}

func (m *Manager) onAuthChange(c auth.Change) {
	switch c.Kind {
	case auth.SignedIn:
		_, _ = m.open(c.Identity)
	case auth.SignedOut:
		m.end(c.Identity.SessionID, c.Identity.ExpiresAt)
	}
}

// Login signs the operator in and returns the token and the opened session.
// The provider's error is returned as is.
func (m *Manager) Login(ctx context.Context, email, password string) (string, *Session, error) {
	token, id, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	s, err := m.open(id)
	if err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Logout revokes the token; the provider's SignedOut change ends the session.
func (m *Manager) Logout(ctx context.Context, token string) error {
	return m.provider.SignOut(ctx, token)
}

// Resolve returns the live session for token, reopening it if the token is
// valid but the session is gone (process restart). A session that was ended
// is never reopened, even if its token verified before the end.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	id, err := m.provider.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.open(id)
}

// Get returns an open session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// open returns the session for id, creating it if needed.
func (m *Manager) open(id auth.Identity) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id.SessionID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if _, ok := m.ended[id.SessionID]; ok || m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", id.SessionID, apperr.ErrSessionClosed)
	}
	s := m.build(id)
	m.sessions[id.SessionID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session: opened", slog.String("session", id.SessionID), slog.String("email", id.Email))
	m.activeChanged(n)
	return s, nil
}

func (m *Manager) build(id auth.Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id.SessionID,
		Email:     id.Email,
		OpenedAt:  m.now(),
		ExpiresAt: id.ExpiresAt,
		ctx:       ctx,
		cancel:    cancel,
		exporter:  m.deps.Exporter,
	}
	s.Events = sse.NewBroker(m.deps.Config.RefreshThrottle)
	s.Export = status.NewBox(m.deps.Config.ExportReset, func(snap status.Snapshot) {
		s.publishStatus(StatusExport, snap)
	})

	logger := m.logger.With(slog.String("session", id.SessionID))
	s.Mirror = mirror.Open(ctx, m.deps.Store, m.deps.Defaults,
		mirror.WithLogger(logger),
		mirror.WithOnChange(func(kind docstore.Kind) {
			s.Events.PublishChange(eventType(kind))
		}),
	)
	s.Workflow = workflow.NewPanel(ctx, m.deps.CI, s.Mirror, m.deps.Store,
		workflow.Config{DispatchReset: m.deps.Config.DispatchReset, ToggleReset: m.deps.Config.ToggleReset},
		workflow.WithLogger(logger),
		workflow.WithResultHook(m.deps.OnWorkflowResult),
		workflow.WithStatusHook(s.publishStatus),
	)
	return s
}

func eventType(kind docstore.Kind) string {
	switch kind {
	case docstore.KindSources:
		return sse.TypeSourcesChanged
	case docstore.KindReports:
		return sse.TypeReportsChanged
	case docstore.KindConfig:
		return sse.TypeConfigChanged
	}
	return fmt.Sprintf("%s.changed", kind)
}

// end closes the session with id, if open, and keeps id from being reopened
// until expiresAt. A zero expiresAt falls back to the open session's expiry.
func (m *Manager) end(id string, expiresAt time.Time) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if expiresAt.IsZero() {
			expiresAt = s.ExpiresAt
		}
	}
	m.ended[id] = expiresAt
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	m.logger.Info("session: closed", slog.String("session", id))
	m.activeChanged(n)
}

func (m *Manager) activeChanged(n int) {
	if m.deps.OnActiveChange != nil {
		m.deps.OnActiveChange(n)
	}
}

// Sweep closes sessions whose token expired.
func (m *Manager) Sweep() int {
	now := m.now()
	var expired []string
	m.mu.Lock()
	for id, until := range m.ended {
		if !until.IsZero() && now.After(until) {
			delete(m.ended, id)
		}
	}
	for id, s := range m.sessions {
		if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.end(id, time.Time{})
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx ends, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.deps.Config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("session: expired sessions closed", slog.Int("count", n))
			}
		}
	}
}

// Close unsubscribes from the provider and ends all sessions. No session
// opens afterwards.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.end(id, time.Time{})
	}
}
