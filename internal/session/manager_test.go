package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/auth"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/export"
	"github.com/starford/intelboard/internal/githubci"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/status"
	"github.com/starford/intelboard/internal/testutil"
)

type nopCI struct{ calls atomic.Int32 }

func (n *nopCI) Dispatch(context.Context, githubci.Credentials) error { n.calls.Add(1); return nil }
func (n *nopCI) Enable(context.Context, githubci.Credentials) error   { n.calls.Add(1); return nil }
func (n *nopCI) Disable(context.Context, githubci.Credentials) error  { n.calls.Add(1); return nil }

type fakeExporter struct {
	err   error
	block chan struct{}
}

func (f *fakeExporter) Export(ctx context.Context, r models.IntelReport) (export.Document, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return export.Document{}, ctx.Err()
		}
	}
	if f.err != nil {
		return export.Document{}, f.err
	}
	return export.Document{FileName: r.ID + ".pdf", Data: []byte("%PDF")}, nil
}

type env struct {
	store    *docstore.Store
	provider *auth.LocalProvider
	manager  *Manager
	active   atomic.Int32
}

func newEnv(t *testing.T, exp Exporter) *env {
	t.Helper()
	e := &env{store: testutil.TestStore(t)}
	p, err := auth.NewLocalProvider(e.store.DB(), auth.Config{Secret: "s3cret", TTL: time.Hour}, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddOperator(context.Background(), "ops@example.com", "correct-horse"); err != nil {
		t.Fatal(err)
	}
	e.provider = p
	if exp == nil {
		exp = &fakeExporter{}
	}
	e.manager = NewManager(p, Deps{
		Store:          e.store,
		CI:             &nopCI{},
		Exporter:       exp,
		Config:         Config{ExportReset: 50 * time.Millisecond, RefreshThrottle: 10 * time.Millisecond},
		OnActiveChange: func(n int) { e.active.Store(int32(n)) },
	})
	t.Cleanup(e.manager.Close)
	return e
}

func TestLogin_OpensSession(t *testing.T) {
	e := newEnv(t, nil)
	token, s, err := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" || s == nil {
		t.Fatal("expected token and session")
	}
	if e.manager.Active() != 1 || e.active.Load() != 1 {
		t.Errorf("active = %d / %d, want 1", e.manager.Active(), e.active.Load())
	}
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, s.Mirror.Ready, "mirror not ready")
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(s.Mirror.Snapshot().Sources) == 8
	}, "defaults not seeded on first login")
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t, nil)
	_, s, err := e.manager.Login(context.Background(), "ops@example.com", "nope")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if s != nil || e.manager.Active() != 0 {
		t.Error("failed login must not open a session")
	}
}

func TestLogout_ReleasesSession(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	token, s, err := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, s.Mirror.Ready, "mirror not ready")

	if err := e.manager.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if e.manager.Active() != 0 {
		t.Error("session still open after logout")
	}
	if !s.IsClosed() {
		t.Error("session context not cancelled")
	}
	if _, err := e.manager.Resolve(ctx, token); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("Resolve after logout: err = %v", err)
	}

	before := len(s.Mirror.Snapshot().Reports)
	_, _ = e.store.CreateReport(ctx, models.IntelReport{Content: "late"})
	time.Sleep(100 * time.Millisecond)
	if len(s.Mirror.Snapshot().Reports) != before {
		t.Error("mirror updated after logout")
	}
}

func TestResolve_ReopensAfterRestart(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	token, s, err := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	// A second manager over the same provider plays the restarted process.
	e.manager.Close()
	m2 := NewManager(e.provider, Deps{Store: e.store, CI: &nopCI{}, Exporter: &fakeExporter{}})
	defer m2.Close()

	got, err := m2.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("session id = %s, want %s", got.ID, s.ID)
	}
	again, _ := m2.Resolve(ctx, token)
	if again != got {
		t.Error("Resolve must return the live session")
	}
}

func TestResolve_EmptyToken(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := e.manager.Resolve(context.Background(), ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("err = %v", err)
	}
}

func TestAddSource_AppearsInMirror(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, s, err := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	svc := sources.NewService(e.store, nil)

	src, err := s.AddForm.Submit(ctx, svc, sources.Input{Name: "Magento", URL: "https://magento.com"})
	if err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		got, ok := s.Mirror.Source(src.ID)
		return ok && got.Category == models.CategoryERPs
	}, "new source not mirrored with category ERPs")
	if s.AddForm.State().Values != (sources.Input{}) {
		t.Error("form not reset")
	}
}

func TestExportReport(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, s, _ := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	r, _ := e.store.CreateReport(ctx, models.IntelReport{Name: "Weekly", Content: "## FedEx"})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := s.Mirror.Report(r.ID)
		return ok
	}, "report not mirrored")

	doc, err := s.ExportReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("ExportReport: %v", err)
	}
	if doc.FileName != r.ID+".pdf" {
		t.Errorf("file = %s", doc.FileName)
	}
	if st := s.Export.Get().State; st != status.Success {
		t.Errorf("export state = %q", st)
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return s.Export.Get().State == status.Idle
	}, "export status did not reset")

	if _, err := s.ExportReport(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExportReport_Failure(t *testing.T) {
	e := newEnv(t, &fakeExporter{err: errors.New("chrome crashed")})
	ctx := context.Background()
	_, s, _ := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	r, _ := e.store.CreateReport(ctx, models.IntelReport{Content: "## x"})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := s.Mirror.Report(r.ID)
		return ok
	}, "report not mirrored")

	if _, err := s.ExportReport(ctx, r.ID); err == nil {
		t.Fatal("expected error")
	}
	st := s.Export.Get()
	if st.State != status.Error || st.Message != "chrome crashed" {
		t.Errorf("status = %+v", st)
	}
}

func TestExportReport_SessionEnded(t *testing.T) {
	exp := &fakeExporter{block: make(chan struct{})}
	e := newEnv(t, exp)
	ctx := context.Background()
	token, s, _ := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	r, _ := e.store.CreateReport(ctx, models.IntelReport{Content: "## x"})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := s.Mirror.Report(r.ID)
		return ok
	}, "report not mirrored")

	done := make(chan error, 1)
	go func() {
		_, err := s.ExportReport(ctx, r.ID)
		done <- err
	}()
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return s.Export.Get().State == status.Running
	}, "export not started")

	if err := e.manager.Logout(ctx, token); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestExportReport_RequestCancelled(t *testing.T) {
	exp := &fakeExporter{block: make(chan struct{})}
	e := newEnv(t, exp)
	_, s, _ := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	r, _ := e.store.CreateReport(context.Background(), models.IntelReport{Content: "## x"})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := s.Mirror.Report(r.ID)
		return ok
	}, "report not mirrored")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.ExportReport(ctx, r.ID)
		done <- err
	}()
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return s.Export.Get().State == status.Running
	}, "export not started")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("export kept running after the request was cancelled")
	}
	if s.IsClosed() {
		t.Error("session closed by a cancelled request")
	}
	if st := s.Export.Get().State; st == status.Running {
		t.Errorf("export state = %q after cancel", st)
	}
}

func TestExportStatus_NoViewRefresh(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, s, _ := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	r, _ := e.store.CreateReport(ctx, models.IntelReport{Content: "## x"})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := s.Mirror.Report(r.ID)
		return ok
	}, "report not mirrored")
	time.Sleep(50 * time.Millisecond)

	stream := s.Events.Subscribe()
	defer stream.Close()

	if _, err := s.ExportReport(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return s.Export.Get().State == status.Idle
	}, "export status did not reset")
	time.Sleep(50 * time.Millisecond)

	var statuses, refreshes int
	for {
		select {
		case f := <-stream.C:
			switch {
			case strings.HasPrefix(string(f), "event: status.changed\n"):
				statuses++
			case strings.HasPrefix(string(f), "event: view.refresh\n"):
				refreshes++
			}
			continue
		default:
		}
		break
	}
	if statuses != 3 {
		t.Errorf("status events = %d, want 3 (running, success, reset)", statuses)
	}
	if refreshes != 0 {
		t.Errorf("view.refresh events = %d, want 0", refreshes)
	}
}

func TestSweep(t *testing.T) {
	e := newEnv(t, nil)
	_, _, err := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	if n := e.manager.Sweep(); n != 0 {
		t.Errorf("swept %d live sessions", n)
	}
	e.manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := e.manager.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if e.manager.Active() != 0 {
		t.Error("expired session still open")
	}
}

// parkedVerify succeeds, then holds the caller until release is closed.
type parkedVerify struct {
	*auth.LocalProvider
	verified chan struct{}
	release  chan struct{}
}

func (p *parkedVerify) Verify(ctx context.Context, token string) (auth.Identity, error) {
	id, err := p.LocalProvider.Verify(ctx, token)
	if err == nil {
		p.verified <- struct{}{}
		<-p.release
	}
	return id, err
}

func TestResolve_DoesNotReopenEndedSession(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	pv := &parkedVerify{
		LocalProvider: e.provider,
		verified:      make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	m := NewManager(pv, Deps{
		Store:    e.store,
		CI:       &nopCI{},
		Exporter: &fakeExporter{},
		Config:   Config{RefreshThrottle: 10 * time.Millisecond},
	})
	t.Cleanup(m.Close)

	token, s, err := m.Login(ctx, "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	resolved := make(chan error, 1)
	go func() {
		_, err := m.Resolve(ctx, token)
		resolved <- err
	}()
	<-pv.verified

	if err := m.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(pv.release)

	if err := <-resolved; !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Resolve racing logout: err = %v, want ErrSessionClosed", err)
	}
	if m.Active() != 0 {
		t.Errorf("active = %d after logout, want 0", m.Active())
	}
	if _, ok := m.Get(s.ID); ok {
		t.Error("ended session was reopened")
	}

	// The ended id is forgotten once its token has expired.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	m.Sweep()
	m.mu.Lock()
	left := len(m.ended)
	m.mu.Unlock()
	if left != 0 {
		t.Errorf("ended ids kept past expiry: %d", left)
	}
}

func TestClose_RefusesNewSessions(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	token, _, err := e.manager.Login(ctx, "ops@example.com", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	e.manager.Close()
	if e.manager.Active() != 0 {
		t.Fatal("sessions left after Close")
	}
	if _, err := e.manager.Resolve(ctx, token); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Resolve after Close: err = %v", err)
	}
	if _, _, err := e.manager.Login(ctx, "ops@example.com", "correct-horse"); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Login after Close: err = %v", err)
	}
	if e.manager.Active() != 0 {
		t.Error("session opened after Close")
	}
}

func TestUpdateUI(t *testing.T) {
	e := newEnv(t, nil)
	_, s, _ := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	s.UpdateUI(func(u *UIState) {
		u.SettingsOpen = true
		u.SelectedReport = "r1"
	})
	ui := s.UI()
	if !ui.SettingsOpen || ui.SelectedReport != "r1" {
		t.Errorf("ui = %+v", ui)
	}
}

func TestView(t *testing.T) {
	e := newEnv(t, nil)
	_, s, _ := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, s.Mirror.Ready, "mirror not ready")
	s.UpdateUI(func(u *UIState) { u.Notice = "saved" })

	in := s.View()
	if in.Email != "ops@example.com" || in.Notice != "saved" || !in.Snapshot.Ready {
		t.Errorf("view input = %+v", in)
	}
}

func TestTakeNotice(t *testing.T) {
	e := newEnv(t, nil)
	_, s, _ := e.manager.Login(context.Background(), "ops@example.com", "correct-horse")
	s.UpdateUI(func(u *UIState) { u.Notice = "Seeded 8 default sources" })
	if got := s.TakeNotice(); got != "Seeded 8 default sources" {
		t.Errorf("notice = %q", got)
	}
	if got := s.TakeNotice(); got != "" {
		t.Errorf("notice not cleared: %q", got)
	}
}
