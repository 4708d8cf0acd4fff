package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/githubci"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/status"
	"github.com/starford/intelboard/internal/testutil"
)

type staticView struct{ cfg models.SystemConfig }

func (v staticView) Config() models.SystemConfig { return v.cfg }

var ready = staticView{cfg: models.SystemConfig{GHPAT: "ghp_x", GHRepo: "acme/intel"}}

type githubStub struct {
	calls  atomic.Int32
	status int
	body   string
	block  chan struct{}
}

func (g *githubStub) server(t *testing.T) *githubci.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.calls.Add(1)
		if g.block != nil {
			<-g.block
		}
		w.WriteHeader(g.status)
		_, _ = w.Write([]byte(g.body))
	}))
	t.Cleanup(srv.Close)
	return githubci.New(githubci.Config{APIURL: srv.URL})
}

func newPanel(t *testing.T, ci CI, view ConfigView, opts ...Option) (*Panel, *docstore.Store) {
	t.Helper()
	store := testutil.TestStore(t)
	p := NewPanel(context.Background(), ci, view, store, Config{DispatchReset: 80 * time.Millisecond}, opts...)
	t.Cleanup(p.Close)
	return p, store
}

func TestRunCycle_SuccessThenNeutral(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent}
	var results []string
	p, _ := newPanel(t, gh.server(t), ready, WithResultHook(func(a, r string) { results = append(results, a+":"+r) }))

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Equal(t, status.Success, p.Status().Dispatch.State)
	assert.Equal(t, []string{"dispatch:success"}, results)

	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return p.Status().Dispatch.State == status.Idle
	}, "dispatch status did not reset")
}

func TestRunCycle_ProviderMessage(t *testing.T) {
	gh := &githubStub{status: http.StatusNotFound, body: `{"message":"Not Found"}`}
	p, _ := newPanel(t, gh.server(t), ready)

	err := p.RunCycle(context.Background())
	var apiErr *githubci.APIError
	require.True(t, errors.As(err, &apiErr))
	st := p.Status().Dispatch
	assert.Equal(t, status.Error, st.State)
	assert.Equal(t, "Not Found", st.Message)
}

func TestRunCycle_SettingsRequired(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent}
	p, _ := newPanel(t, gh.server(t), staticView{cfg: models.SystemConfig{GHRepo: "acme/intel"}})

	err := p.RunCycle(context.Background())
	assert.ErrorIs(t, err, apperr.ErrSettingsRequired)
	assert.Zero(t, gh.calls.Load())
	assert.Equal(t, status.Idle, p.Status().Dispatch.State)
}

func TestToggle_EmptyTokenNoCall(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent}
	p, store := newPanel(t, gh.server(t), staticView{})

	err := p.Toggle(context.Background(), true)
	assert.ErrorIs(t, err, apperr.ErrSettingsRequired)
	assert.Zero(t, gh.calls.Load())

	cfg, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.IsPaused)
	assert.Zero(t, cfg.Revision)
}

func TestToggle_PauseMergesIsPaused(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent}
	p, store := newPanel(t, gh.server(t), ready)
	ctx := context.Background()

	freq := models.FrequencyWeekly
	_, err := store.MergeConfig(ctx, models.ConfigPatch{Frequency: &freq}, docstore.AnyRevision)
	require.NoError(t, err)

	require.NoError(t, p.Toggle(ctx, true))
	cfg, _ := store.GetConfig(ctx)
	assert.True(t, cfg.IsPaused)
	assert.Equal(t, models.FrequencyWeekly, cfg.Frequency, "other fields untouched")
	assert.Equal(t, status.Success, p.Status().Toggle.State)

	require.NoError(t, p.Toggle(ctx, false))
	cfg, _ = store.GetConfig(ctx)
	assert.False(t, cfg.IsPaused)
}

func TestToggle_FailureLeavesConfig(t *testing.T) {
	gh := &githubStub{status: http.StatusForbidden, body: `{"message":"Resource not accessible by personal access token"}`}
	p, store := newPanel(t, gh.server(t), ready)

	err := p.Toggle(context.Background(), true)
	require.Error(t, err)
	cfg, _ := store.GetConfig(context.Background())
	assert.False(t, cfg.IsPaused)
	assert.Zero(t, cfg.Revision)
	assert.Equal(t, "Resource not accessible by personal access token", p.Status().Toggle.Message)
}

type conflictStore struct {
	ConfigStore
	mu        sync.Mutex
	conflicts int
	merges    int
}

func (c *conflictStore) MergeConfig(ctx context.Context, patch models.ConfigPatch, rev int64) (models.SystemConfig, error) {
	c.mu.Lock()
	c.merges++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return models.SystemConfig{}, apperr.ErrConflict
	}
	c.mu.Unlock()
	return c.ConfigStore.MergeConfig(ctx, patch, rev)
}

func TestToggle_RetriesOnConflict(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent}
	ci := gh.server(t)
	store := testutil.TestStore(t)

	cs := &conflictStore{ConfigStore: store, conflicts: 2}
	p := NewPanel(context.Background(), ci, ready, cs, Config{})
	defer p.Close()

	require.NoError(t, p.Toggle(context.Background(), true))
	assert.Equal(t, 3, cs.merges)

	cs2 := &conflictStore{ConfigStore: store, conflicts: 5}
	p2 := NewPanel(context.Background(), ci, ready, cs2, Config{})
	defer p2.Close()
	err := p2.Toggle(context.Background(), false)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 3, cs2.merges)
}

func TestRunCycle_SessionEndedDiscardsResult(t *testing.T) {
	gh := &githubStub{status: http.StatusNoContent, block: make(chan struct{})}
	ci := gh.server(t)
	store := testutil.TestStore(t)

	session, end := context.WithCancel(context.Background())
	var results atomic.Int32
	p := NewPanel(session, ci, ready, store, Config{}, WithResultHook(func(string, string) { results.Add(1) }))
	defer p.Close()

	done := make(chan error, 1)
	go func() { done <- p.RunCycle(context.Background()) }()

	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool { return gh.calls.Load() == 1 }, "request not sent")
	end()
	close(gh.block)

	err := <-done
	assert.ErrorIs(t, err, apperr.ErrSessionClosed)
	assert.Zero(t, results.Load())
	assert.Equal(t, status.Running, p.Status().Dispatch.State)
}

func TestSaveSettings(t *testing.T) {
	p, store := newPanel(t, &githubci.Client{}, ready)
	ctx := context.Background()

	repo := " acme/intel "
	freq := models.FrequencyHourly
	cfg, err := p.SaveSettings(ctx, models.ConfigPatch{GHRepo: &repo, Frequency: &freq}, 0)
	require.NoError(t, err)
	assert.Equal(t, "acme/intel", cfg.GHRepo)
	assert.EqualValues(t, 1, cfg.Revision)

	_, err = p.SaveSettings(ctx, models.ConfigPatch{Frequency: &freq}, 0)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	bad := models.Frequency("Yearly")
	_, err = p.SaveSettings(ctx, models.ConfigPatch{Frequency: &bad}, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	badRepo := "intel"
	_, err = p.SaveSettings(ctx, models.ConfigPatch{GHRepo: &badRepo}, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stored, _ := store.GetConfig(ctx)
	assert.EqualValues(t, 1, stored.Revision)
}
