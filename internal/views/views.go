// Package views maps the active tab to its renderer and builds the view
// models shown by the dashboard. Renderers only read the session's mirrored
// snapshot and screen state; switching tabs never touches the store.
package views

import (
	"fmt"

	"github.com/starford/intelboard/internal/mirror"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/status"
	"github.com/starford/intelboard/internal/workflow"
)

// Tab is one navigation entry.
type Tab struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Known bool   `json:"known"`
}

// Tabs lists the navigation in display order.
var Tabs = []Tab{
	{Slug: "overview", Title: "Overview", Known: true},
	{Slug: "monitored-urls", Title: "Monitored URLs", Known: true},
	{Slug: "topics", Title: "Topics", Known: true},
	{Slug: "reports", Title: "Reports", Known: true},
	{Slug: "workflows", Title: "Workflows", Known: true},
}

// DefaultTab is shown after login.
const DefaultTab = "overview"

// Lookup resolves a slug or a tab title. Unknown names yield a tab with
// Known=false that renders the initializing placeholder.
func Lookup(name string) Tab {
	for _, t := range Tabs {
		if t.Slug == name || t.Title == name {
			return t
		}
	}
	return Tab{Slug: name, Title: name}
}

// Input is everything a renderer may read.
type Input struct {
	Email         string
	Snapshot      mirror.Snapshot
	AddForm       sources.FormState
	EditForm      sources.FormState
	Workflow      workflow.Status
	Export        status.Snapshot
	Selected      string
	SettingsOpen  bool
	SettingsError string
	Notice        string
}

// Placeholder is the body of tabs that have no renderer, and of every tab
// while the session is still loading.
type Placeholder struct {
	Message string `json:"message"`
}

// LoadingMessage is shown until the first snapshot of every collection arrived.
const LoadingMessage = "Loading intelligence data..."

func initializing(t Tab) Placeholder {
	return Placeholder{Message: fmt.Sprintf("%s module is initializing...", t.Title)}
}

// Model returns the view model of tab t. The result is a Placeholder for
// unknown tabs and while the snapshot is not ready.
func Model(t Tab, in Input) any {
	if !in.Snapshot.Ready {
		return Placeholder{Message: LoadingMessage}
	}
	switch t.Slug {
	case "overview":
		return Overview(in)
	case "monitored-urls":
		return MonitoredURLs(in)
	case "topics":
		return Topics(in)
	case "reports":
		return Reports(in)
	case "workflows":
		return Workflows(in)
	}
	return initializing(t)
}
