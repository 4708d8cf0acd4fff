// Package export produces downloadable PDF documents from intel reports.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
)

// Renderer prints an HTML document to PDF.
type Renderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// Archive keeps a copy of each exported document.
type Archive interface {
	Write(path string, content []byte) error
}

// Document is an exported report.
type Document struct {
	FileName string
	Data     []byte
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithArchive stores every exported PDF under a dated path in a.
func WithArchive(a Archive) Option {
	return func(e *Exporter) { e.archive = a }
}

// WithResultHook is called with "success" or "error" after each export.
func WithResultHook(fn func(result string)) Option {
	return func(e *Exporter) { e.onResult = fn }
}

// WithLogger sets the exporter logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// Exporter renders reports through the export template and a Renderer.
type Exporter struct {
	renderer Renderer
	archive  Archive
	onResult func(string)
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(r Renderer, opts ...Option) *Exporter {
	e := &Exporter{renderer: r, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders r to PDF. Archive failures are logged, not returned.
func (e *Exporter) Export(ctx context.Context, r models.IntelReport) (Document, error) {
	doc, err := e.export(ctx, r)
	if e.onResult != nil {
		if err != nil {
			e.onResult("error")
		} else {
			e.onResult("success")
		}
	}
	return doc, err
}

func (e *Exporter) export(ctx context.Context, r models.IntelReport) (Document, error) {
	html, err := report.ExportHTML(r, e.now())
	if err != nil {
		return Document{}, err
	}
	data, err := e.renderer.RenderPDF(ctx, html)
	if err != nil {
		e.logger.Error("export: render failed",
			slog.String("report", r.ID),
			slog.String("error", err.Error()))
		return Document{}, fmt.Errorf("export %s: %w", r.DisplayName(), err)
	}

	doc := Document{FileName: report.FileName(r), Data: data}
	if e.archive != nil {
		p := path.Join(e.now().UTC().Format("2006/01"), r.ID+"-"+doc.FileName)
		if err := e.archive.Write(p, data); err != nil {
			e.logger.Warn("export: archive write failed",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}
	e.logger.Info("export: report rendered",
		slog.String("report", r.ID),
		slog.Int("bytes", len(data)))
	return doc, nil
}
