package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/export"
	"github.com/starford/intelboard/internal/mirror"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/sse"
	"github.com/starford/intelboard/internal/status"
	"github.com/starford/intelboard/internal/views"
	"github.com/starford/intelboard/internal/workflow"
)

// UIState is the per-session screen state that is not stored.
type UIState struct {
	SelectedReport string `json:"selected_report,omitempty"`
	SettingsOpen   bool   `json:"settings_open"`
	SettingsError  string `json:"settings_error,omitempty"`
	Notice         string `json:"notice,omitempty"`
}

// StatusExport names the export indicator in status events. Workflow
// indicators use the workflow action names.
const StatusExport = "export"

// StatusEvent is the payload of a status.changed event.
type StatusEvent struct {
	Target  string       `json:"target"`
	State   status.State `json:"state"`
	Message string       `json:"message,omitempty"`
}

// Session is one signed-in operator and the resources held for them.
type Session struct {
	ID        string
	Email     string
	OpenedAt  time.Time
	ExpiresAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	Mirror   *mirror.Mirror
	Workflow *workflow.Panel
	Events   *sse.Broker
	Export   *status.Box
	AddForm  sources.AddForm
	EditForm sources.EditForm

	exporter Exporter

	mu sync.Mutex
	ui UIState
}

// publishStatus pushes an indicator transition with its new value; pages
// patch the indicator in place, so no view refresh follows.
func (s *Session) publishStatus(target string, snap status.Snapshot) {
	s.Events.Publish(sse.Event{
		Type: sse.TypeStatusChanged,
		Data: StatusEvent{Target: target, State: snap.State, Message: snap.Message},
	})
}

// Context is cancelled when the session ends.
func (s *Session) Context() context.Context {
	return s.ctx
}

// UI returns a copy of the screen state.
func (s *Session) UI() UIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui
}

// UpdateUI applies fn to the screen state. Pages read it on their next
// render; no event is pushed, since rendering itself updates the state.
func (s *Session) UpdateUI(fn func(*UIState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ui)
}

// TakeNotice returns the pending notice and clears it.
func (s *Session) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ui.Notice
	s.ui.Notice = ""
	return n
}

// View collects what the renderers read. It performs no store access.
func (s *Session) View() views.Input {
	ui := s.UI()
	return views.Input{
		Email:         s.Email,
		Snapshot:      s.Mirror.Snapshot(),
		AddForm:       s.AddForm.State(),
		EditForm:      s.EditForm.State(),
		Workflow:      s.Workflow.Status(),
		Export:        s.Export.Get(),
		Selected:      ui.SelectedReport,
		SettingsOpen:  ui.SettingsOpen,
		SettingsError: ui.SettingsError,
		Notice:        ui.Notice,
	}
}

// ExportReport renders a mirrored report to PDF and drives the export
// indicator. A result that arrives after the session ended is discarded.
func (s *Session) ExportReport(ctx context.Context, id string) (export.Document, error) {
	r, ok := s.Mirror.Report(id)
	if !ok {
		return export.Document{}, apperr.ErrNotFound
	}
	return s.exportReport(ctx, r)
}

func (s *Session) exportReport(ctx context.Context, r models.IntelReport) (export.Document, error) {
	// The render stops when either the requester goes away or the
	// session ends.
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	s.Export.Start()
	doc, err := s.exporter.Export(ctx, r)
	if s.ctx.Err() != nil {
		return export.Document{}, apperr.ErrSessionClosed
	}
	if err != nil && ctx.Err() != nil {
		s.Export.Fail("export cancelled")
		return export.Document{}, ctx.Err()
	}
	if err != nil {
		s.Export.Fail(err.Error())
		return export.Document{}, err
	}
	s.Export.Succeed()
	return doc, nil
}

func (s *Session) close() {
	s.cancel()
	s.Mirror.Close()
	s.Workflow.Close()
	s.Export.Close()
	s.Events.Close()
}

// IsClosed reports whether the session ended.
func (s *Session) IsClosed() bool {
	return errors.Is(s.ctx.Err(), context.Canceled)
}
