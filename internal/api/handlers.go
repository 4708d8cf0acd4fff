package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/export"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
	"github.com/starford/intelboard/internal/views"
)

const (
	actionRun    = "run"
	actionPause  = "pause"
	actionResume = "resume"
)

// authMessage is the operator-facing text of a sign-in failure.
func authMessage(err error) string {
	if errors.Is(err, apperr.ErrUnauthorized) {
		return strings.TrimSuffix(err.Error(), ": "+apperr.ErrUnauthorized.Error())
	}
	return "sign-in failed"
}

// Login handles POST /api/login.
//
//	@Summary		Sign in and obtain a session token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	LoginResponse
//	@Failure		401		{object}	errResponse
//	@Router			/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, s, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) || errors.Is(err, apperr.ErrValidation) {
			writeJSON(w, http.StatusUnauthorized, errorBody(authMessage(err)))
			return
		}
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, SessionID: s.ID, ExpiresAt: s.ExpiresAt})
}

// Logout handles POST /api/logout.
//
//	@Summary		Revoke the session token
//	@Tags			auth
//	@Success		204	"Signed out"
//	@Security		BearerAuth
//	@Router			/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), tokenFrom(r)); err != nil {
		writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSources handles GET /api/sources.
//
//	@Summary		List monitored sources
//	@Tags			sources
//	@Produce		json
//	@Success		200	{array}	models.MonitoredSource
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	list, err := h.sources.List(r.Context())
	if err != nil {
		writeError(w, "list sources", err)
		return
	}
	if list == nil {
		list = []models.MonitoredSource{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateSource handles POST /api/sources.
//
//	@Summary		Add a monitored source
//	@Tags			sources
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SourceRequest	true	"Source"
//	@Success		201		{object}	models.MonitoredSource
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [post]
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	src, err := h.sources.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create source", err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// UpdateSource handles PUT /api/sources/{id}.
//
//	@Summary		Replace name, url and category of a source
//	@Tags			sources
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Source id"
//	@Param			body	body		SourceRequest	true	"Source"
//	@Success		200		{object}	models.MonitoredSource
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id} [put]
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	src, err := h.sources.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update source", err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// DeleteSource handles DELETE /api/sources/{id}.
//
//	@Summary		Delete a source
//	@Tags			sources
//	@Param			id	path	string	true	"Source id"
//	@Success		204	"Source deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id} [delete]
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := h.sources.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SeedSources handles POST /api/sources/seed.
//
//	@Summary		Write the default sources
//	@Tags			sources
//	@Produce		json
//	@Success		201	{array}	models.MonitoredSource
//	@Security		BearerAuth
//	@Router			/sources/seed [post]
func (h *Handler) SeedSources(w http.ResponseWriter, r *http.Request) {
	list, err := h.sources.Seed(r.Context())
	if err != nil {
		writeError(w, "seed sources", err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// ListReports handles GET /api/reports.
//
//	@Summary		List reports, newest first
//	@Tags			reports
//	@Produce		json
//	@Success		200	{array}	models.IntelReport
//	@Security		BearerAuth
//	@Router			/reports [get]
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	list, err := h.reports.ListReports(r.Context())
	if err != nil {
		writeError(w, "list reports", err)
		return
	}
	if list == nil {
		list = []models.IntelReport{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetReport handles GET /api/reports/{id}.
//
//	@Summary		Get a report
//	@Tags			reports
//	@Produce		json
//	@Param			id	path		string	true	"Report id"
//	@Success		200	{object}	models.IntelReport
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{id} [get]
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ReportSections handles GET /api/reports/{id}/sections.
//
//	@Summary		Parse a report into integration sections
//	@Tags			reports
//	@Produce		json
//	@Param			id	path		string	true	"Report id"
//	@Success		200	{object}	SectionsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{id}/sections [get]
func (h *Handler) ReportSections(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "report sections", err)
		return
	}
	res := report.Parse(rep.Content)
	resp := SectionsResponse{ID: rep.ID, Kind: res.Kind, Sections: res.Sections}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if resp.Sections == nil {
		resp.Sections = []report.Section{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportReport handles GET /api/reports/{id}/export.
//
//	@Summary		Export a report as PDF
//	@Tags			reports
//	@Produce		application/pdf
//	@Param			id	path		string	true	"Report id"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{id}/export [get]
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	doc, err := s.ExportReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, "export report", err)
		return
	}
	writePDF(w, doc)
}

func writePDF(w http.ResponseWriter, doc export.Document) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func etag(rev int64) string {
	return strconv.Quote(strconv.FormatInt(rev, 10))
}

// GetConfig handles GET /api/config.
//
//	@Summary		Get the shared configuration
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	ConfigResponse
//	@Header			200	{string}	ETag	"Config revision"
//	@Security		BearerAuth
//	@Router			/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := sessionFrom(r).Mirror.Config()
	w.Header().Set("ETag", etag(cfg.Revision))
	writeJSON(w, http.StatusOK, configResponse(cfg))
}

// PutConfig handles PUT /api/config with optimistic concurrency.
//
//	@Summary		Merge settings into the shared configuration
//	@Tags			config
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header		string				false	"Revision the client last read"
//	@Param			body		body		models.ConfigPatch	true	"Fields to change"
//	@Success		200			{object}	ConfigResponse
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/config [put]
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	rev := docstore.AnyRevision
	if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" && ifMatch != "*" {
		n, err := strconv.ParseInt(ifMatch, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("If-Match must be a config revision"))
			return
		}
		rev = n
	}
	var patch models.ConfigPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	cfg, err := sessionFrom(r).Workflow.SaveSettings(r.Context(), patch, rev)
	if err != nil {
		writeError(w, "save config", err)
		return
	}
	w.Header().Set("ETag", etag(cfg.Revision))
	writeJSON(w, http.StatusOK, configResponse(cfg))
}

// Workflow handles POST /api/workflow/{run,pause,resume}.
//
//	@Summary		Dispatch, pause or resume the automation workflow
//	@Tags			workflow
//	@Produce		json
//	@Success		200	{object}	WorkflowStatusResponse
//	@Failure		412	{object}	errResponse	"Token or repository not set"
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workflow/run [post]
func (h *Handler) Workflow(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if err := runAction(r, action); err != nil {
			writeUpstreamError(w, "workflow "+action, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Workflow.Status())
	}
}

func runAction(r *http.Request, action string) error {
	p := sessionFrom(r).Workflow
	switch action {
	case actionRun:
		return p.RunCycle(r.Context())
	case actionPause:
		return p.Toggle(r.Context(), true)
	case actionResume:
		return p.Toggle(r.Context(), false)
	}
	return fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, action)
}

// WorkflowStatus handles GET /api/workflow/status.
//
//	@Summary		Current action indicators of the session
//	@Tags			workflow
//	@Produce		json
//	@Success		200	{object}	WorkflowStatusResponse
//	@Security		BearerAuth
//	@Router			/workflow/status [get]
func (h *Handler) WorkflowStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).Workflow.Status())
}

// ViewModel handles GET /api/views/{tab}.
//
//	@Summary		View model of a dashboard tab
//	@Tags			views
//	@Produce		json
//	@Param			tab	path	string	true	"Tab slug"
//	@Success		200	{object}	object
//	@Security		BearerAuth
//	@Router			/views/{tab} [get]
func (h *Handler) ViewModel(w http.ResponseWriter, r *http.Request) {
	tab := views.Lookup(chi.URLParam(r, "tab"))
	writeJSON(w, http.StatusOK, map[string]any{
		"tab":   tab,
		"model": views.Model(tab, sessionFrom(r).View()),
	})
}

// Events handles the session's SSE stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Events.ServeHTTP(w, r)
}
