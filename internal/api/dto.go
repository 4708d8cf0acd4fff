package api

import (
	"time"

	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/views"
	"github.com/starford/intelboard/internal/workflow"
)

// LoginRequest is the request body for signing in.
type LoginRequest struct {
	Email    string `json:"email" example:"ops@example.com" validate:"required"`
	Password string `json:"password" example:"correct-horse" validate:"required"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token     string    `json:"token" validate:"required"`
	SessionID string    `json:"session_id" validate:"required"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// SourceRequest is the request body for creating or updating a source.
type SourceRequest = sources.Input

// SourceStatusRequest is the readiness update sent by the automation workflow.
type SourceStatusRequest = models.SourceStatus

// ReportRequest is the request body for ingesting a report.
type ReportRequest struct {
	Name       string     `json:"name" example:"Weekly Intel"`
	Content    string     `json:"content" example:"## FedEx API\n..." validate:"required"`
	Status     string     `json:"status,omitempty" example:"completed"`
	AlertCount *int       `json:"alert_count,omitempty" example:"3"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// SectionsResponse is a report parsed into integration sections.
type SectionsResponse struct {
	ID       string           `json:"id" validate:"required"`
	Kind     report.Kind      `json:"kind" example:"parsed" validate:"required"`
	Error    string           `json:"error,omitempty"`
	Sections []report.Section `json:"sections" validate:"required"`
}

// ConfigResponse is the shared SystemConfig with the token reduced to a flag.
type ConfigResponse = views.ConfigView

// WorkflowStatusResponse is the pair of action indicators of the session.
type WorkflowStatusResponse = workflow.Status

func configResponse(c models.SystemConfig) ConfigResponse {
	return ConfigResponse{
		IsPaused:  c.IsPaused,
		Frequency: c.Frequency,
		Freshness: c.IntelligenceFreshness,
		Repo:      c.GHRepo,
		TokenSet:  c.GHPAT != "",
		Revision:  c.Revision,
	}
}
