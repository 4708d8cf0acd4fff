package views

import (
	"strings"
	"time"

	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/status"
)

// Readiness defaults for sources the workflow has not analysed yet.
const (
	DefaultStatus = "Ready"
	DefaultImpact = "No Changes"
	DefaultAction = "Monitoring"
	DefaultDate   = "Pending Analysis"
)

// EmptyCategoryText is shown in a topic panel without sources.
const EmptyCategoryText = "No sources monitored in this category."

// ReadinessRow is one line of the overview matrix.
type ReadinessRow struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Category models.Category `json:"category"`
	Status   string          `json:"status"`
	Impact   string          `json:"impact"`
	Action   string          `json:"action"`
	Date     string          `json:"date"`
}

// StatusClass is the CSS class of the row's status dot.
func (r ReadinessRow) StatusClass() string {
	switch strings.ToLower(r.Status) {
	case "ready":
		return "status-ready"
	case "action required":
		return "status-action"
	}
	return "status-review"
}

// OverviewModel is the Overview tab.
type OverviewModel struct {
	SourceCount  int            `json:"source_count"`
	ReportCount  int            `json:"report_count"`
	LatestAlerts *int           `json:"latest_alerts,omitempty"`
	LatestReport string         `json:"latest_report,omitempty"`
	Paused       bool           `json:"paused"`
	Rows         []ReadinessRow `json:"rows"`
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Overview derives one readiness row per source.
func Overview(in Input) OverviewModel {
	snap := in.Snapshot
	m := OverviewModel{
		SourceCount: len(snap.Sources),
		ReportCount: len(snap.Reports),
		Paused:      snap.Config.IsPaused,
		Rows:        make([]ReadinessRow, 0, len(snap.Sources)),
	}
	if len(snap.Reports) > 0 {
		latest := snap.Reports[0]
		m.LatestAlerts = latest.AlertCount
		m.LatestReport = latest.DisplayName()
	}
	for _, s := range snap.Sources {
		m.Rows = append(m.Rows, ReadinessRow{
			ID:       s.ID,
			Name:     s.Name,
			URL:      s.URL,
			Category: s.Category,
			Status:   orDefault(s.LastStatus, DefaultStatus),
			Impact:   orDefault(s.LastImpact, DefaultImpact),
			Action:   orDefault(s.NextAction, DefaultAction),
			Date:     orDefault(s.LastDate, DefaultDate),
		})
	}
	return m
}

// MonitoredURLsModel is the source management tab.
type MonitoredURLsModel struct {
	Sources    []models.MonitoredSource `json:"sources"`
	Categories []models.Category        `json:"categories"`
	Add        sources.FormState        `json:"add"`
	Edit       sources.FormState        `json:"edit"`
	Notice     string                   `json:"notice,omitempty"`
}

// MonitoredURLs lists the sources with the add form and edit modal state.
func MonitoredURLs(in Input) MonitoredURLsModel {
	return MonitoredURLsModel{
		Sources:    nonNil(in.Snapshot.Sources),
		Categories: models.Categories,
		Add:        in.AddForm,
		Edit:       in.EditForm,
		Notice:     in.Notice,
	}
}

// TopicPanel groups the sources of one category.
type TopicPanel struct {
	Category  models.Category          `json:"category"`
	Sources   []models.MonitoredSource `json:"sources"`
	EmptyText string                   `json:"empty_text,omitempty"`
}

// TopicsModel is the Topics tab.
type TopicsModel struct {
	Panels []TopicPanel `json:"panels"`
}

// Topics groups sources by category in the fixed category order. Sources
// with an unknown category are listed under General.
func Topics(in Input) TopicsModel {
	grouped := make(map[models.Category][]models.MonitoredSource, len(models.Categories))
	for _, s := range in.Snapshot.Sources {
		c := s.Category
		if !c.Valid() {
			c = models.CategoryGeneral
		}
		grouped[c] = append(grouped[c], s)
	}
	m := TopicsModel{Panels: make([]TopicPanel, 0, len(models.Categories))}
	for _, c := range models.Categories {
		p := TopicPanel{Category: c, Sources: nonNil(grouped[c])}
		if len(p.Sources) == 0 {
			p.EmptyText = EmptyCategoryText
		}
		m.Panels = append(m.Panels, p)
	}
	return m
}

// ReportItem is one row of the report list.
type ReportItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status,omitempty"`
	AlertCount *int      `json:"alert_count,omitempty"`
	Selected   bool      `json:"selected"`
}

// ReportDetail is the selected report rendered as sections.
type ReportDetail struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Timestamp  time.Time        `json:"timestamp"`
	Kind       report.Kind      `json:"kind"`
	HasContent bool             `json:"has_content"`
	Sections   []report.Section `json:"sections"`
	ExportURL  string           `json:"export_url"`
}

// ReportsModel is the Reports tab.
type ReportsModel struct {
	Items    []ReportItem    `json:"items"`
	Selected *ReportDetail   `json:"selected,omitempty"`
	Export   status.Snapshot `json:"export"`
}

// Reports lists reports newest first. The selected report, or the newest
// when none is selected, is parsed into sections.
func Reports(in Input) ReportsModel {
	list := in.Snapshot.Reports
	m := ReportsModel{Items: make([]ReportItem, 0, len(list)), Export: in.Export}

	selected := -1
	for i, r := range list {
		if r.ID == in.Selected {
			selected = i
		}
	}
	if selected < 0 && len(list) > 0 {
		selected = 0
	}

	for i, r := range list {
		m.Items = append(m.Items, ReportItem{
			ID:         r.ID,
			Name:       r.DisplayName(),
			Timestamp:  r.Timestamp,
			Status:     r.Status,
			AlertCount: r.AlertCount,
			Selected:   i == selected,
		})
	}
	if selected >= 0 {
		r := list[selected]
		res := report.Parse(r.Content)
		d := &ReportDetail{
			ID:         r.ID,
			Name:       r.DisplayName(),
			Timestamp:  r.Timestamp,
			Kind:       res.Kind,
			HasContent: res.HasContent(),
			Sections:   []report.Section{},
			ExportURL:  "/ui/reports/" + r.ID + "/export",
		}
		if d.HasContent {
			d.Sections = res.Sections
		}
		m.Selected = d
	}
	return m
}

// ConfigView is SystemConfig with the token reduced to a flag.
type ConfigView struct {
	IsPaused  bool             `json:"is_paused"`
	Frequency models.Frequency `json:"frequency"`
	Freshness models.Freshness `json:"intelligence_freshness"`
	Repo      string           `json:"gh_repo"`
	TokenSet  bool             `json:"gh_pat_set"`
	Revision  int64            `json:"revision"`
}

// WorkflowsModel is the Workflows tab.
type WorkflowsModel struct {
	Config        ConfigView         `json:"config"`
	Dispatch      status.Snapshot    `json:"dispatch"`
	Toggle        status.Snapshot    `json:"toggle"`
	SettingsOpen  bool               `json:"settings_open"`
	SettingsError string             `json:"settings_error,omitempty"`
	Frequencies   []models.Frequency `json:"frequencies"`
	Freshnesses   []models.Freshness `json:"freshnesses"`
}

// Workflows shows the shared configuration and the action indicators.
func Workflows(in Input) WorkflowsModel {
	cfg := in.Snapshot.Config
	return WorkflowsModel{
		Config: ConfigView{
			IsPaused:  cfg.IsPaused,
			Frequency: cfg.Frequency,
			Freshness: cfg.IntelligenceFreshness,
			Repo:      cfg.GHRepo,
			TokenSet:  cfg.GHPAT != "",
			Revision:  cfg.Revision,
		},
		Dispatch:      in.Workflow.Dispatch,
		Toggle:        in.Workflow.Toggle,
		SettingsOpen:  in.SettingsOpen,
		SettingsError: in.SettingsError,
		Frequencies:   models.Frequencies,
		Freshnesses:   models.Freshnesses,
	}
}

func nonNil(list []models.MonitoredSource) []models.MonitoredSource {
	if list == nil {
		return []models.MonitoredSource{}
	}
	return list
}
