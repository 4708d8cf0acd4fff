package sources

import (
	"context"
	"testing"

	"github.com/starford/intelboard/internal/models"
)

func TestAddForm_ResetsOnSuccess(t *testing.T) {
	svc, _ := newService(t)
	var f AddForm

	if _, err := f.Submit(context.Background(), svc, Input{Name: "Etsy", URL: "https://etsy.com"}); err != nil {
		t.Fatal(err)
	}
	st := f.State()
	if st.Values != (Input{}) || st.Error != "" {
		t.Errorf("form not reset: %+v", st)
	}
}

func TestAddForm_KeepsValuesOnError(t *testing.T) {
	svc, _ := newService(t)
	var f AddForm

	in := Input{Name: "Etsy", URL: ""}
	if _, err := f.Submit(context.Background(), svc, in); err == nil {
		t.Fatal("expected validation error")
	}
	st := f.State()
	if st.Values != in {
		t.Errorf("values = %+v, want %+v", st.Values, in)
	}
	if st.Error == "" {
		t.Error("expected error message")
	}
}

func TestEditForm(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	src, _ := svc.Create(ctx, Input{Name: "Walmart", URL: "https://walmart.com", Category: models.CategoryMarketplaces})

	var f EditForm
	f.Open(*src)
	st := f.State()
	if !st.Open || st.ID != src.ID || st.Values.Name != "Walmart" {
		t.Fatalf("state = %+v", st)
	}

	f.Cancel()
	if f.State().Open {
		t.Error("cancel did not close the form")
	}

	f.Open(*src)
	if _, err := f.Submit(ctx, svc, src.ID, Input{Name: "", URL: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
	if st := f.State(); !st.Open || st.Error == "" {
		t.Errorf("failed submit must keep modal open with error: %+v", st)
	}

	if _, err := f.Submit(ctx, svc, src.ID, Input{Name: "Walmart Marketplace", URL: "https://developer.walmart.com"}); err != nil {
		t.Fatal(err)
	}
	if f.State().Open {
		t.Error("successful submit must close the modal")
	}
}
