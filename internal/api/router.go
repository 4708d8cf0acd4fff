package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/session"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/views"
)

// ReportStore is the report side of the document store.
type ReportStore interface {
	ListReports(ctx context.Context) ([]models.IntelReport, error)
	GetReport(ctx context.Context, id string) (*models.IntelReport, error)
	CreateReport(ctx context.Context, m models.IntelReport) (*models.IntelReport, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Deps are the components the handlers call.
type Deps struct {
	Sessions    *session.Manager
	Sources     *sources.Service
	Reports     ReportStore
	Views       *views.Renderer
	Cookie      CookieConfig
	IngestToken string
}

// Handler holds the route handlers.
type Handler struct {
	sessions *session.Manager
	sources  *sources.Service
	reports  ReportStore
	views    *views.Renderer
	cookie   CookieConfig
	now      func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	if d.Cookie.Name == "" {
		d.Cookie.Name = "intelboard_session"
	}
	return &Handler{
		sessions: d.Sessions,
		sources:  d.Sources,
		reports:  d.Reports,
		views:    d.Views,
		cookie:   d.Cookie,
		now:      time.Now,
	}
}

// NewRouter creates a chi router with the dashboard, JSON API and ingest
// routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d)
	r := chi.NewRouter()

	// Sign-in (unauthenticated).
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.LoginForm)

	// Dashboard pages (session cookie).
	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession(true))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/ui/"+views.DefaultTab, http.StatusSeeOther)
		})
		r.Post("/logout", h.LogoutForm)
		r.Get("/ui/events", h.Events)
		r.Get("/ui/{tab}", h.Page)
		r.Post("/ui/sources", h.AddSourceForm)
		r.Post("/ui/sources/seed", h.SeedSourcesForm)
		r.Get("/ui/sources/{id}/edit", h.EditSourceForm)
		r.Post("/ui/sources/{id}", h.UpdateSourceForm)
		r.Post("/ui/sources/{id}/delete", h.DeleteSourceForm)
		r.Get("/ui/reports/{id}/export", h.ExportReportForm)
		r.Post("/ui/workflow/run", h.WorkflowForm(actionRun))
		r.Post("/ui/workflow/pause", h.WorkflowForm(actionPause))
		r.Post("/ui/workflow/resume", h.WorkflowForm(actionResume))
		r.Post("/ui/settings", h.SettingsForm)
	})

	// JSON API (bearer token or cookie).
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession(false))
			r.Post("/logout", h.Logout)

			r.Get("/sources", h.ListSources)
			r.Post("/sources", h.CreateSource)
			r.Post("/sources/seed", h.SeedSources)
			r.Put("/sources/{id}", h.UpdateSource)
			r.Delete("/sources/{id}", h.DeleteSource)

			r.Get("/reports", h.ListReports)
			r.Get("/reports/{id}", h.GetReport)
			r.Get("/reports/{id}/sections", h.ReportSections)
			r.Get("/reports/{id}/export", h.ExportReport)

			r.Get("/config", h.GetConfig)
			r.Put("/config", h.PutConfig)

			r.Post("/workflow/run", h.Workflow(actionRun))
			r.Post("/workflow/pause", h.Workflow(actionPause))
			r.Post("/workflow/resume", h.Workflow(actionResume))
			r.Get("/workflow/status", h.WorkflowStatus)

			r.Get("/views/{tab}", h.ViewModel)
			r.Get("/events", h.Events)
		})
	})

	// Ingest (static token).
	r.Route("/ingest", func(r chi.Router) {
		r.Use(IngestAuth(d.IngestToken))
		r.Post("/reports", h.IngestReport)
		r.Patch("/sources/{id}/status", h.IngestSourceStatus)
	})

	return r
}
