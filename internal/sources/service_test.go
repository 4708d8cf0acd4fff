package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/testutil"
)

func newService(t *testing.T) (*Service, Store) {
	t.Helper()
	store := testutil.TestStore(t)
	return NewService(store, nil), store
}

func TestCreate_DefaultsCategory(t *testing.T) {
	svc, _ := newService(t)
	src, err := svc.Create(context.Background(), Input{Name: "  Magento  ", URL: " https://magento.com/notes "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if src.Category != models.CategoryERPs {
		t.Errorf("category = %q, want ERPs", src.Category)
	}
	if src.Name != "Magento" || src.URL != "https://magento.com/notes" {
		t.Errorf("values not trimmed: %+v", src)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	cases := []Input{
		{Name: "", URL: "https://x"},
		{Name: "x", URL: "   "},
		{Name: "x", URL: "https://x", Category: "Retail"},
	}
	for _, in := range cases {
		if _, err := svc.Create(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%+v): err = %v, want ErrValidation", in, err)
		}
	}
	list, _ := store.ListSources(ctx)
	if len(list) != 0 {
		t.Errorf("invalid input reached the store: %d sources", len(list))
	}
}

func TestUpdate_KeepsStatus(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	src, _ := svc.Create(ctx, Input{Name: "FedEx", URL: "https://fedex.com", Category: models.CategoryCarriers})
	_ = svc.UpdateStatus(ctx, src.ID, models.SourceStatus{LastStatus: "Action Required"})

	if _, err := svc.Update(ctx, src.ID, Input{Name: "FedEx REST", URL: "https://developer.fedex.com", Category: models.CategoryCarriers}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := store.GetSource(ctx, src.ID)
	if got.Name != "FedEx REST" || got.LastStatus != "Action Required" {
		t.Errorf("got %+v", got)
	}

	if _, err := svc.Update(ctx, "missing", Input{Name: "a", URL: "b"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update unknown id: err = %v", err)
	}
}

func TestSeed_Unconditional(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Seed(ctx); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Seed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 8 {
		t.Errorf("seeded %d, want 8", len(out))
	}
	list, _ := svc.List(ctx)
	if len(list) != 16 {
		t.Errorf("got %d sources, want 16 (duplicates allowed)", len(list))
	}
}

func TestSeedMissing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, Input{Name: "shopify changelog", URL: "https://shopify.dev/changelog", Category: models.CategoryMarketplaces})
	out, err := svc.SeedMissing(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 7 {
		t.Errorf("seeded %d, want 7", len(out))
	}
	for _, s := range out {
		if strings.EqualFold(s.Name, "Shopify Changelog") {
			t.Error("existing default was seeded again")
		}
	}
	out, _ = svc.SeedMissing(ctx)
	if len(out) != 0 {
		t.Errorf("second run seeded %d, want 0", len(out))
	}
}

func TestCleanup(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, _ = store.CreateSource(ctx, models.MonitoredSource{Name: "ok", URL: "https://ok", Category: models.CategoryERPs})
	_, _ = store.CreateSource(ctx, models.MonitoredSource{Name: "", URL: "https://blank-name"})
	_, _ = store.CreateSource(ctx, models.MonitoredSource{Name: "blank url", URL: " "})

	res, err := svc.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 3 || res.Deleted != 2 {
		t.Errorf("result = %+v", res)
	}
	list, _ := svc.List(ctx)
	if len(list) != 1 || list[0].Name != "ok" {
		t.Errorf("remaining = %+v", list)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	src, _ := svc.Create(ctx, Input{Name: "a", URL: "b"})

	if err := svc.Delete(ctx, src.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, src.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
