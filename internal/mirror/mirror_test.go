package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/testutil"
)

func waitReady(t *testing.T, m *Mirror) {
	t.Helper()
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, m.Ready, "mirror never became ready")
}

func TestOpen_BootstrapSeedsEmptyStore(t *testing.T) {
	store := testutil.TestStore(t)
	m := Open(context.Background(), store, models.SystemConfig{})
	defer m.Close()

	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(m.Snapshot().Sources) == 8
	}, "defaults not mirrored")

	got := map[string]models.Category{}
	for _, s := range m.Snapshot().Sources {
		got[s.Name] = s.Category
	}
	for _, d := range models.DefaultSources {
		if got[d.Name] != d.Category {
			t.Errorf("%s: category = %q, want %q", d.Name, got[d.Name], d.Category)
		}
	}
}

func TestOpen_TwoMirrorsSeedOnce(t *testing.T) {
	store := testutil.TestStore(t)
	a := Open(context.Background(), store, models.SystemConfig{})
	defer a.Close()
	b := Open(context.Background(), store, models.SystemConfig{})
	defer b.Close()

	waitReady(t, a)
	waitReady(t, b)
	time.Sleep(100 * time.Millisecond)

	list, _ := store.ListSources(context.Background())
	if len(list) != 8 {
		t.Errorf("store has %d sources, want 8", len(list))
	}
}

func TestMirror_EmptyAfterDeletesStaysEmpty(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()
	if _, err := store.SeedDefaultsOnce(ctx); err != nil {
		t.Fatal(err)
	}
	list, _ := store.ListSources(ctx)
	for _, s := range list {
		_ = store.DeleteSource(ctx, s.ID)
	}

	m := Open(ctx, store, models.SystemConfig{})
	defer m.Close()
	waitReady(t, m)
	if n := len(m.Snapshot().Sources); n != 0 {
		t.Errorf("got %d sources, want 0 (seed already happened once)", n)
	}
}

func TestMirror_FollowsWrites(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()
	m := Open(ctx, store, models.SystemConfig{})
	defer m.Close()
	waitReady(t, m)

	src, err := store.CreateSource(ctx, models.MonitoredSource{Name: "Magento", URL: "https://magento.com", Category: models.CategoryERPs})
	if err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		_, ok := m.Source(src.ID)
		return ok
	}, "created source not mirrored")

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _ = store.CreateReport(ctx, models.IntelReport{Name: "old", Timestamp: old, Content: "x"})
	r, _ := store.CreateReport(ctx, models.IntelReport{Name: "new", Timestamp: old.Add(time.Hour), Content: "y"})
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		reports := m.Snapshot().Reports
		return len(reports) == 2 && reports[0].ID == r.ID
	}, "reports not mirrored newest first")

	if err := store.DeleteSource(ctx, src.ID); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		_, ok := m.Source(src.ID)
		return !ok
	}, "deleted source still mirrored")
}

func TestMirror_ConfigDefaults(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()
	defaults := models.SystemConfig{Frequency: models.FrequencyDaily, GHRepo: "acme/default", IntelligenceFreshness: models.Freshness1Month}

	m := Open(ctx, store, defaults)
	defer m.Close()
	waitReady(t, m)

	if cfg := m.Config(); cfg.GHRepo != "acme/default" || cfg.Frequency != models.FrequencyDaily {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	repo := "acme/shared"
	if _, err := store.MergeConfig(ctx, models.ConfigPatch{GHRepo: &repo}, docstore.AnyRevision); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		cfg := m.Config()
		return cfg.GHRepo == "acme/shared" && cfg.Frequency == models.FrequencyDaily && cfg.Revision == 1
	}, "stored config must override defaults field by field")
}

func TestMirror_OnChangeAndClose(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	kinds := map[docstore.Kind]int{}
	m := Open(ctx, store, models.SystemConfig{}, WithOnChange(func(k docstore.Kind) {
		mu.Lock()
		defer mu.Unlock()
		kinds[k]++
	}))
	waitReady(t, m)

	m.Close()
	mu.Lock()
	before := kinds[docstore.KindReports]
	mu.Unlock()

	_, _ = store.CreateReport(ctx, models.IntelReport{Content: "after close"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if kinds[docstore.KindReports] != before {
		t.Error("callback fired after Close")
	}
	if kinds[docstore.KindConfig] == 0 || kinds[docstore.KindSources] == 0 {
		t.Errorf("expected change callbacks for every kind: %v", kinds)
	}
	m.Close()
}
