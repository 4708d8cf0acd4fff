package sources

import (
	"context"
	"errors"
	"sync"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
)

// FormState is what a form shows: the buffered values and the last error.
type FormState struct {
	ID     string `json:"id,omitempty"`
	Open   bool   `json:"open"`
	Values Input  `json:"values"`
	Error  string `json:"error,omitempty"`
}

// AddForm buffers the add-source form of one session. Values stay local until
// a successful submit clears them.
type AddForm struct {
	mu    sync.Mutex
	state FormState
}

// State returns a copy of the form.
func (f *AddForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.Open = true
	return s
}

// Submit creates a source from in. On failure the values are kept and the
// error message is shown.
func (f *AddForm) Submit(ctx context.Context, svc *Service, in Input) (*models.MonitoredSource, error) {
	f.mu.Lock()
	f.state.Values = in
	f.state.Error = ""
	f.mu.Unlock()

	src, err := svc.Create(ctx, in)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state.Error = formMessage(err)
		return nil, err
	}
	f.state = FormState{}
	return src, nil
}

// EditForm buffers the edit modal of one session.
type EditForm struct {
	mu    sync.Mutex
	state FormState
}

// State returns a copy of the form.
func (f *EditForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Open loads src into the buffer.
func (f *EditForm) Open(src models.MonitoredSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FormState{
		ID:     src.ID,
		Open:   true,
		Values: Input{Name: src.Name, URL: src.URL, Category: src.Category},
	}
}

// Cancel discards the buffer.
func (f *EditForm) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = FormState{}
}

// Submit writes in over the source being edited and closes the modal on
// success.
func (f *EditForm) Submit(ctx context.Context, svc *Service, id string, in Input) (*models.MonitoredSource, error) {
	f.mu.Lock()
	f.state.ID = id
	f.state.Open = true
	f.state.Values = in
	f.state.Error = ""
	f.mu.Unlock()

	src, err := svc.Update(ctx, id, in)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state.Error = formMessage(err)
		return nil, err
	}
	f.state = FormState{}
	return src, nil
}

func formMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return "source no longer exists"
	}
	return err.Error()
}
