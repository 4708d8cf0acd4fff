package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/starford/intelboard/internal/models"
)

//go:embed templates/export.html
var templateFS embed.FS

var exportTmpl = template.Must(
	template.New("export.html").
		Funcs(template.FuncMap{"lower": strings.ToLower}).
		ParseFS(templateFS, "templates/export.html"),
)

type exportData struct {
	Title      string
	Timestamp  time.Time
	Status     string
	AlertCount int
	Generated  time.Time
	Sections   []Section
}

// ExportHTML renders the printable A4 document for a report. Reports whose
// content does not parse are rendered with an empty-content notice.
func ExportHTML(r models.IntelReport, generated time.Time) ([]byte, error) {
	res := Parse(r.Content)
	data := exportData{
		Title:     r.DisplayName(),
		Timestamp: r.Timestamp,
		Status:    r.Status,
		Generated: generated,
	}
	if r.AlertCount != nil {
		data.AlertCount = *r.AlertCount
	}
	if res.HasContent() {
		data.Sections = res.Sections
	}

	var buf bytes.Buffer
	if err := exportTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("report: render export: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName is the download name of an exported report.
func FileName(r models.IntelReport) string {
	name := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			return c
		case c == ' ' || c == '_':
			return '-'
		}
		return -1
	}, r.DisplayName())
	return fmt.Sprintf("%s-%s.pdf", name, r.Timestamp.UTC().Format("2006-01-02"))
}
