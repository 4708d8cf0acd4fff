// Package models defines the domain types for intelboard.
package models

import "time"

// Category groups monitored sources on the Topics screen.
type Category string

const (
	CategoryERPs         Category = "ERPs"
	CategoryCarriers     Category = "Carriers"
	CategoryMarketplaces Category = "Marketplaces"
	CategoryGeneral      Category = "General"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryERPs, CategoryCarriers, CategoryMarketplaces, CategoryGeneral}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Frequency is how often the automation workflow is expected to run.
type Frequency string

const (
	FrequencyHourly  Frequency = "Hourly"
	FrequencyDaily   Frequency = "Daily"
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
)

// Frequencies lists the accepted frequency values.
var Frequencies = []Frequency{FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly}

// Freshness bounds how old source content may be for the analysis to consider it.
type Freshness string

const (
	Freshness1Week   Freshness = "1 Week"
	Freshness1Month  Freshness = "1 Month"
	Freshness3Months Freshness = "3 Months"
	Freshness6Months Freshness = "6 Months"
	Freshness1Year   Freshness = "1 Year"
)

// Freshnesses lists the accepted freshness values.
var Freshnesses = []Freshness{Freshness1Week, Freshness1Month, Freshness3Months, Freshness6Months, Freshness1Year}

// MonitoredSource is a documentation or release-notes URL watched by the
// automation workflow. The Last* fields are written by the workflow.
type MonitoredSource struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Category   Category  `json:"category"`
	LastStatus string    `json:"last_status,omitempty"`
	LastImpact string    `json:"last_impact,omitempty"`
	NextAction string    `json:"next_action,omitempty"`
	LastDate   string    `json:"last_date,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SourceStatus carries the readiness fields the workflow reports per source.
type SourceStatus struct {
	LastStatus string `json:"last_status"`
	LastImpact string `json:"last_impact"`
	NextAction string `json:"next_action"`
	LastDate   string `json:"last_date"`
}

// IntelReport is an intelligence report produced by the automation workflow.
type IntelReport struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
	Status     string    `json:"status,omitempty"`
	AlertCount *int      `json:"alert_count,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	Checksum   string    `json:"-"`
}

// DisplayName returns the report name or a generic title.
func (r IntelReport) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return "Intelligence Report"
}

// SystemConfig is the singleton configuration shared by all operators.
// Revision increases by one on every write.
type SystemConfig struct {
	IsPaused              bool      `json:"is_paused"`
	Frequency             Frequency `json:"frequency"`
	GHPAT                 string    `json:"gh_pat"`
	GHRepo                string    `json:"gh_repo"`
	IntelligenceFreshness Freshness `json:"intelligence_freshness"`
	Revision              int64     `json:"revision"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// WithDefaults fills empty fields of c from d. Values present in c win.
func (c SystemConfig) WithDefaults(d SystemConfig) SystemConfig {
	if c.Frequency == "" {
		c.Frequency = d.Frequency
	}
	if c.GHPAT == "" {
		c.GHPAT = d.GHPAT
	}
	if c.GHRepo == "" {
		c.GHRepo = d.GHRepo
	}
	if c.IntelligenceFreshness == "" {
		c.IntelligenceFreshness = d.IntelligenceFreshness
	}
	return c
}

// ConfigPatch is a partial SystemConfig; nil fields are left untouched by a merge.
type ConfigPatch struct {
	IsPaused              *bool      `json:"is_paused,omitempty"`
	Frequency             *Frequency `json:"frequency,omitempty"`
	GHPAT                 *string    `json:"gh_pat,omitempty"`
	GHRepo                *string    `json:"gh_repo,omitempty"`
	IntelligenceFreshness *Freshness `json:"intelligence_freshness,omitempty"`
}

// Apply returns c with the non-nil fields of p written over it.
func (p ConfigPatch) Apply(c SystemConfig) SystemConfig {
	if p.IsPaused != nil {
		c.IsPaused = *p.IsPaused
	}
	if p.Frequency != nil {
		c.Frequency = *p.Frequency
	}
	if p.GHPAT != nil {
		c.GHPAT = *p.GHPAT
	}
	if p.GHRepo != nil {
		c.GHRepo = *p.GHRepo
	}
	if p.IntelligenceFreshness != nil {
		c.IntelligenceFreshness = *p.IntelligenceFreshness
	}
	return c
}

// DefaultSources are the eight industry endpoints seeded into an empty store.
var DefaultSources = []MonitoredSource{
	{Name: "NetSuite Release Notes", URL: "https://docs.oracle.com/en/cloud/saas/netsuite/ns-online-help/latest-release.html", Category: CategoryERPs},
	{Name: "Shopify Changelog", URL: "https://shopify.dev/changelog", Category: CategoryMarketplaces},
	{Name: "Shippo Changelog", URL: "https://goshippo.com/docs/changelog/", Category: CategoryCarriers},
	{Name: "FedEx Announcements", URL: "https://developer.fedex.com/api/en-us/announcements.html", Category: CategoryCarriers},
	{Name: "Amazon SP-API Blog", URL: "https://developer-docs.amazon.com/sp-api/blog", Category: CategoryMarketplaces},
	{Name: "Walmart Developer News", URL: "https://developer.walmart.com/news", Category: CategoryMarketplaces},
	{Name: "TikTok Shop News", URL: "https://developers.tiktok-shops.com/documents/news", Category: CategoryMarketplaces},
	{Name: "Etsy Developer News", URL: "https://www.etsy.com/developers/news", Category: CategoryMarketplaces},
}
