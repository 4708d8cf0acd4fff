package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/intelboard/internal/models"
)

// IngestReport handles POST /ingest/reports.
//
//	@Summary		Store a report produced by the automation workflow
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReportRequest	true	"Report"
//	@Success		201		{object}	models.IntelReport
//	@Failure		400		{object}	errResponse
//	@Security		IngestToken
//	@Router			/ingest/reports [post]
func (h *Handler) IngestReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	rep := models.IntelReport{
		Name:       req.Name,
		Content:    req.Content,
		Status:     req.Status,
		AlertCount: req.AlertCount,
	}
	if req.Timestamp != nil {
		rep.Timestamp = *req.Timestamp
	}
	out, err := h.reports.CreateReport(r.Context(), rep)
	if err != nil {
		writeError(w, "ingest report", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// IngestSourceStatus handles PATCH /ingest/sources/{id}/status.
//
//	@Summary		Record the readiness analysis of a source
//	@Tags			ingest
//	@Accept			json
//	@Param			id		path	string				true	"Source id"
//	@Param			body	body	SourceStatusRequest	true	"Readiness fields"
//	@Success		204		"Status recorded"
//	@Failure		404		{object}	errResponse
//	@Security		IngestToken
//	@Router			/ingest/sources/{id}/status [patch]
func (h *Handler) IngestSourceStatus(w http.ResponseWriter, r *http.Request) {
	var req SourceStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.sources.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeError(w, "ingest source status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

