package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/session"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/views"
	"github.com/starford/intelboard/internal/workflow"
)

func (h *Handler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  h.now().Add(-time.Hour),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) html(w http.ResponseWriter, status int, render func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := render(w); err != nil {
		slog.Error("render page failed", slog.String("error", err.Error()))
	}
}

func redirectTab(w http.ResponseWriter, r *http.Request, tab string) {
	http.Redirect(w, r, "/ui/"+tab, http.StatusSeeOther)
}

// LoginPage renders the sign-in form, or goes to the dashboard when the
// caller already holds a live session.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if token := h.sessionToken(r); token != "" {
		if _, err := h.sessions.Resolve(r.Context(), token); err == nil {
			redirectTab(w, r, views.DefaultTab)
			return
		}
	}
	h.html(w, http.StatusOK, func(w http.ResponseWriter) error {
		return h.views.RenderLogin(w, views.LoginPage{})
	})
}

// LoginForm signs in from the HTML form. A failure re-renders the form with
// the email kept and the provider's message shown.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	token, s, err := h.sessions.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, apperr.ErrUnauthorized) {
			slog.Error("login failed", slog.String("error", err.Error()))
		}
		h.html(w, http.StatusUnauthorized, func(w http.ResponseWriter) error {
			return h.views.RenderLogin(w, views.LoginPage{Email: email, Error: authMessage(err)})
		})
		return
	}
	h.setCookie(w, token, s.ExpiresAt)
	redirectTab(w, r, views.DefaultTab)
}

// LogoutForm signs out and returns to the login form.
func (h *Handler) LogoutForm(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), tokenFrom(r)); err != nil {
		slog.Warn("logout failed", slog.String("error", err.Error()))
	}
	h.clearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Page renders one dashboard tab. Query parameters select a report, open
// the settings panel or cancel the edit modal.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	tab := views.Lookup(chi.URLParam(r, "tab"))
	q := r.URL.Query()

	switch tab.Slug {
	case "reports":
		if id := q.Get("id"); id != "" {
			s.UpdateUI(func(u *session.UIState) { u.SelectedReport = id })
		}
	case "workflows":
		if q.Get("settings") != "" {
			s.UpdateUI(func(u *session.UIState) { u.SettingsOpen = true })
		}
	case "monitored-urls":
		if q.Get("cancel") != "" {
			s.EditForm.Cancel()
		}
	}

	in := s.View()
	in.Notice = s.TakeNotice()
	h.html(w, http.StatusOK, func(w http.ResponseWriter) error {
		return h.views.Render(w, tab, in)
	})
}

func sourceInput(r *http.Request) sources.Input {
	return sources.Input{
		Name:     r.PostFormValue("name"),
		URL:      r.PostFormValue("url"),
		Category: models.Category(r.PostFormValue("category")),
	}
}

func notice(s *session.Session, msg string) {
	s.UpdateUI(func(u *session.UIState) { u.Notice = msg })
}

// AddSourceForm submits the add-source form. The form keeps its values and
// shows the error when the write is refused.
func (h *Handler) AddSourceForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if _, err := s.AddForm.Submit(r.Context(), h.sources, sourceInput(r)); err != nil {
		slog.Info("add source refused", slog.String("error", err.Error()))
	}
	redirectTab(w, r, "monitored-urls")
}

// EditSourceForm opens the edit modal on a mirrored source.
func (h *Handler) EditSourceForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	src, ok := s.Mirror.Source(chi.URLParam(r, "id"))
	if !ok {
		notice(s, "That source no longer exists.")
	} else {
		s.EditForm.Open(src)
	}
	redirectTab(w, r, "monitored-urls")
}

// UpdateSourceForm submits the edit modal.
func (h *Handler) UpdateSourceForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if _, err := s.EditForm.Submit(r.Context(), h.sources, chi.URLParam(r, "id"), sourceInput(r)); err != nil {
		slog.Info("update source refused", slog.String("error", err.Error()))
	}
	redirectTab(w, r, "monitored-urls")
}

// DeleteSourceForm deletes a source without confirmation.
func (h *Handler) DeleteSourceForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := h.sources.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		notice(s, "Delete failed: "+err.Error())
	}
	redirectTab(w, r, "monitored-urls")
}

// SeedSourcesForm writes the default sources.
func (h *Handler) SeedSourcesForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	list, err := h.sources.Seed(r.Context())
	if err != nil {
		notice(s, "Seeding failed: "+err.Error())
	} else {
		notice(s, fmt.Sprintf("Seeded %d default sources.", len(list)))
	}
	redirectTab(w, r, "monitored-urls")
}

// WorkflowForm runs a workflow action from the dashboard. Missing token or
// repository opens the settings panel instead.
func (h *Handler) WorkflowForm(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		err := runAction(r, action)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrSettingsRequired):
			s.UpdateUI(func(u *session.UIState) {
				u.SettingsOpen = true
				u.SettingsError = "Set the GitHub token and repository first."
			})
		case errors.Is(err, apperr.ErrSessionClosed):
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		default:
			slog.Warn("workflow action failed", slog.String("action", action), slog.String("error", workflow.Message(err)))
		}
		redirectTab(w, r, "workflows")
	}
}

// ExportReportForm serves the dashboard's export link. A failed export goes
// back to the report, where the export indicator shows the error.
func (h *Handler) ExportReportForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	id := chi.URLParam(r, "id")
	doc, err := s.ExportReport(r.Context(), id)
	switch {
	case err == nil:
		writePDF(w, doc)
	case errors.Is(err, apperr.ErrSessionClosed):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case r.Context().Err() != nil:
	default:
		slog.Warn("export report failed", slog.String("report", id), slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrNotFound) {
			notice(s, "Report not found.")
		}
		http.Redirect(w, r, "/ui/reports?id="+url.QueryEscape(id), http.StatusSeeOther)
	}
}

// SettingsForm saves the settings panel. An empty token field keeps the
// stored token.
func (h *Handler) SettingsForm(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)

	rev := docstore.AnyRevision
	if v := r.PostFormValue("revision"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rev = n
		}
	}
	repo := r.PostFormValue("gh_repo")
	freq := models.Frequency(r.PostFormValue("frequency"))
	fresh := models.Freshness(r.PostFormValue("intelligence_freshness"))
	patch := models.ConfigPatch{GHRepo: &repo}
	if pat := r.PostFormValue("gh_pat"); strings.TrimSpace(pat) != "" {
		patch.GHPAT = &pat
	}
	if freq != "" {
		patch.Frequency = &freq
	}
	if fresh != "" {
		patch.IntelligenceFreshness = &fresh
	}

	_, err := s.Workflow.SaveSettings(r.Context(), patch, rev)
	s.UpdateUI(func(u *session.UIState) {
		switch {
		case err == nil:
			u.SettingsOpen = false
			u.SettingsError = ""
			u.Notice = "Settings saved."
		case errors.Is(err, apperr.ErrConflict):
			u.SettingsOpen = true
			u.SettingsError = "Settings were changed by another operator. Review and save again."
		default:
			u.SettingsOpen = true
			u.SettingsError = err.Error()
		}
	})
	redirectTab(w, r, "workflows")
}
