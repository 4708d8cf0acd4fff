// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes monitored sources and intel reports to LLM agents over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
	"github.com/starford/intelboard/internal/sources"
)

const formatURI = "intelboard://report-format"

// ReportStore is the report side of the document store.
type ReportStore interface {
	ListReports(ctx context.Context) ([]models.IntelReport, error)
	GetReport(ctx context.Context, id string) (*models.IntelReport, error)
	CreateReport(ctx context.Context, m models.IntelReport) (*models.IntelReport, error)
}

// Server wraps the MCP server with the intelboard tools.
type Server struct {
	mcp     *server.MCPServer
	sources *sources.Service
	reports ReportStore
}

// New creates an MCP server with all tools registered.
func New(src *sources.Service, reports ReportStore, version string) *Server {
	s := &Server{sources: src, reports: reports}

	s.mcp = server.NewMCPServer(
		"intelboard",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the monitored documentation and release-note sources."),
		mcp.WithString("category", mcp.Description("Optional category filter: ERPs, Carriers, Marketplaces or General")),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("add_source",
		mcp.WithDescription("Start monitoring a documentation or release-notes URL."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name, e.g. 'Shopify Changelog'")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page to monitor")),
		mcp.WithString("category", mcp.Description("ERPs (default), Carriers, Marketplaces or General")),
	), s.addSource)

	s.mcp.AddTool(mcp.NewTool("delete_source",
		mcp.WithDescription("Stop monitoring a source."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Source id from list_sources")),
	), s.deleteSource)

	s.mcp.AddTool(mcp.NewTool("list_reports",
		mcp.WithDescription("List intelligence reports, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default 20)")),
	), s.listReports)

	s.mcp.AddTool(mcp.NewTool("read_report",
		mcp.WithDescription("Read the raw Markdown content of a report."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report id from list_reports")),
	), s.readReport)

	s.mcp.AddTool(mcp.NewTool("report_sections",
		mcp.WithDescription("Parse a report into its integration sections (title, release date, type, impact, summary, details, impact, action)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report id from list_reports")),
	), s.reportSections)

	s.mcp.AddTool(mcp.NewTool("submit_report",
		mcp.WithDescription("Store a new intelligence report. Content MUST follow the report format; "+
			"read it first via get_report_format or the "+formatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown report following the format")),
		mcp.WithString("name", mcp.Description("Report title, e.g. 'Weekly Intel 2026-02-20'")),
		mcp.WithString("status", mcp.Description("Free-form status, e.g. 'completed'")),
		mcp.WithNumber("alert_count", mcp.Description("Number of sections that need action")),
	), s.submitReport)

	s.mcp.AddTool(mcp.NewTool("get_report_format",
		mcp.WithDescription("Returns the intel report Markdown format. Call this before submit_report."),
	), s.getReportFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Report Format",
			mcp.WithResourceDescription("Markdown structure every intel report must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.sources.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category := strings.TrimSpace(req.GetString("category", ""))
	out := make([]models.MonitoredSource, 0, len(list))
	for _, src := range list {
		if category == "" || strings.EqualFold(string(src.Category), category) {
			out = append(out, src)
		}
	}
	return jsonResult(out), nil
}

func (s *Server) addSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.sources.Create(ctx, sources.Input{
		Name:     name,
		URL:      url,
		Category: models.Category(req.GetString("category", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(src), nil
}

func (s *Server) deleteSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sources.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

type reportItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status,omitempty"`
	AlertCount *int      `json:"alert_count,omitempty"`
}

func (s *Server) listReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.reports.ListReports(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]reportItem, 0, limit)
	for _, r := range list[:limit] {
		out = append(out, reportItem{
			ID:         r.ID,
			Name:       r.DisplayName(),
			Timestamp:  r.Timestamp,
			Status:     r.Status,
			AlertCount: r.AlertCount,
		})
	}
	return jsonResult(out), nil
}

func (s *Server) report(ctx context.Context, req mcp.CallToolRequest) (*models.IntelReport, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	r, err := s.reports.GetReport(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return r, nil
}

func (s *Server) readReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.report(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(r.Content), nil
}

func (s *Server) reportSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.report(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	res := report.Parse(r.Content)
	out := map[string]any{
		"kind":     res.Kind,
		"sections": res.Sections,
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	return jsonResult(out), nil
}

func (s *Server) submitReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := report.Parse(content)
	if res.Kind != report.Parsed {
		return mcp.NewToolResultError(fmt.Sprintf(
			"report is %s: it needs at least one '## <Integration>' section; see get_report_format", res.Kind)), nil
	}

	r := models.IntelReport{
		Name:    req.GetString("name", ""),
		Content: content,
		Status:  req.GetString("status", ""),
	}
	if n := req.GetInt("alert_count", -1); n >= 0 {
		r.AlertCount = &n
	}
	created, err := s.reports.CreateReport(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%d sections)", created.ID, len(res.Sections))), nil
}

func (s *Server) getReportFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReportFormat), nil
}

func (s *Server) readReportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ReportFormat,
		},
	}, nil
}
