// Package workflow is the per-session control panel for the automation
// workflow: run a cycle, pause or resume it, and edit the shared settings.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/githubci"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/status"
)

// Actions as reported to hooks and status listeners.
const (
	ActionDispatch = "dispatch"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionToggle   = "toggle"
)

const mergeAttempts = 3

// CI is the remote trigger service.
type CI interface {
	Dispatch(ctx context.Context, creds githubci.Credentials) error
	Enable(ctx context.Context, creds githubci.Credentials) error
	Disable(ctx context.Context, creds githubci.Credentials) error
}

// ConfigView returns the session's current view of SystemConfig.
type ConfigView interface {
	Config() models.SystemConfig
}

// ConfigStore reads and merges the stored SystemConfig.
type ConfigStore interface {
	GetConfig(ctx context.Context) (models.SystemConfig, error)
	MergeConfig(ctx context.Context, patch models.ConfigPatch, ifRevision int64) (models.SystemConfig, error)
}

// Status is the indicator pair shown on the Workflows screen.
type Status struct {
	Dispatch status.Snapshot `json:"dispatch"`
	Toggle   status.Snapshot `json:"toggle"`
}

// Config holds the indicator reset delays.
type Config struct {
	DispatchReset time.Duration
	ToggleReset   time.Duration
}

// Option configures a Panel.
type Option func(*Panel)

// WithResultHook is called with the action and "success" or "error" after
// every remote call whose session is still open.
func WithResultHook(fn func(action, result string)) Option {
	return func(p *Panel) { p.onResult = fn }
}

// WithStatusHook is called on every indicator transition.
func WithStatusHook(fn func(action string, s status.Snapshot)) Option {
	return func(p *Panel) { p.onStatus = fn }
}

// WithLogger sets the panel logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Panel) { p.logger = l }
}

// Panel runs workflow actions for one session. Results that arrive after the
// session context ended are discarded.
type Panel struct {
	session context.Context
	ci      CI
	view    ConfigView
	store   ConfigStore

	dispatch *status.Box
	toggle   *status.Box

	onResult func(action, result string)
	onStatus func(action string, s status.Snapshot)
	logger   *slog.Logger
}

// NewPanel creates a panel bound to the session context.
func NewPanel(session context.Context, ci CI, view ConfigView, store ConfigStore, cfg Config, opts ...Option) *Panel {
	if cfg.DispatchReset <= 0 {
		cfg.DispatchReset = 5 * time.Second
	}
	if cfg.ToggleReset <= 0 {
		cfg.ToggleReset = cfg.DispatchReset
	}
	p := &Panel{
		session: session,
		ci:      ci,
		view:    view,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dispatch = status.NewBox(cfg.DispatchReset, p.statusHook(ActionDispatch))
	p.toggle = status.NewBox(cfg.ToggleReset, p.statusHook(ActionToggle))
	return p
}

func (p *Panel) statusHook(action string) func(status.Snapshot) {
	return func(s status.Snapshot) {
		if p.onStatus != nil {
			p.onStatus(action, s)
		}
	}
}

// Status returns both indicators.
func (p *Panel) Status() Status {
	return Status{Dispatch: p.dispatch.Get(), Toggle: p.toggle.Get()}
}

// Close stops the indicator timers.
func (p *Panel) Close() {
	p.dispatch.Close()
	p.toggle.Close()
}

func (p *Panel) credentials() (githubci.Credentials, error) {
	cfg := p.view.Config()
	if cfg.GHPAT == "" || cfg.GHRepo == "" {
		return githubci.Credentials{}, apperr.ErrSettingsRequired
	}
	return githubci.Credentials{Token: cfg.GHPAT, Repo: cfg.GHRepo}, nil
}

// scoped derives a context that keeps ctx's values, ignores its cancellation
// and ends with the session.
func (p *Panel) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(p.session, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *Panel) sessionEnded() bool {
	return p.session.Err() != nil
}

func (p *Panel) report(action string, err error) {
	if p.onResult == nil {
		return
	}
	if err != nil {
		p.onResult(action, "error")
		return
	}
	p.onResult(action, "success")
}

// RunCycle dispatches one run of the workflow.
func (p *Panel) RunCycle(ctx context.Context) error {
	creds, err := p.credentials()
	if err != nil {
		return err
	}
	ctx, cancel := p.scoped(ctx)
	defer cancel()

	p.dispatch.Start()
	err = p.ci.Dispatch(ctx, creds)
	if p.sessionEnded() {
		return apperr.ErrSessionClosed
	}
	p.report(ActionDispatch, err)
	if err != nil {
		p.dispatch.Fail(Message(err))
		p.logger.Warn("workflow: dispatch failed", slog.String("error", err.Error()))
		return err
	}
	p.dispatch.Succeed()
	p.logger.Info("workflow: cycle dispatched", slog.String("repo", creds.Repo))
	return nil
}

// Toggle disables (pause) or enables the workflow and records the new state
// in the shared SystemConfig. A failed remote call leaves the config as is.
func (p *Panel) Toggle(ctx context.Context, pause bool) error {
	creds, err := p.credentials()
	if err != nil {
		return err
	}
	ctx, cancel := p.scoped(ctx)
	defer cancel()

	action, call := ActionResume, p.ci.Enable
	if pause {
		action, call = ActionPause, p.ci.Disable
	}

	p.toggle.Start()
	err = call(ctx, creds)
	if p.sessionEnded() {
		return apperr.ErrSessionClosed
	}
	if err == nil {
		err = p.mergePaused(ctx, pause)
		if p.sessionEnded() {
			return apperr.ErrSessionClosed
		}
	}
	p.report(action, err)
	if err != nil {
		p.toggle.Fail(Message(err))
		p.logger.Warn("workflow: toggle failed", slog.String("action", action), slog.String("error", err.Error()))
		return err
	}
	p.toggle.Succeed()
	p.logger.Info("workflow: toggled", slog.String("action", action), slog.String("repo", creds.Repo))
	return nil
}

// mergePaused writes is_paused with a revision check, re-reading on conflict.
func (p *Panel) mergePaused(ctx context.Context, paused bool) error {
	patch := models.ConfigPatch{IsPaused: &paused}
	var err error
	for attempt := 0; attempt < mergeAttempts; attempt++ {
		var cur models.SystemConfig
		cur, err = p.store.GetConfig(ctx)
		if err != nil {
			return err
		}
		_, err = p.store.MergeConfig(ctx, patch, cur.Revision)
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("workflow: save paused state: %w", err)
}

// Message is the operator-facing text of a workflow error: the provider's
// message when it sent one, otherwise the error text.
func Message(err error) string {
	var apiErr *githubci.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
