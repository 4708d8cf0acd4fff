// Package inbox turns Markdown files dropped into a directory into intel
// reports. Each file is keyed by its path relative to the inbox root.
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/intelboard/internal/models"
	"github.com/starford/intelboard/internal/report"
	"github.com/starford/intelboard/internal/storage"
)

const ext = ".md"

// Store is the report side of the document store.
type Store interface {
	UpsertReportByOrigin(ctx context.Context, m models.IntelReport) (*models.IntelReport, error)
	OriginChecksums(ctx context.Context) (map[string]string, error)
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the inbox logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithOnIngest is called with the origin of every report written.
func WithOnIngest(fn func(origin string)) Option {
	return func(in *Inbox) { in.onIngest = fn }
}

// Inbox syncs and watches one directory. It is driven by a single goroutine.
type Inbox struct {
	store    Store
	files    *storage.FS
	logger   *slog.Logger
	onIngest func(string)

	// known maps origin to the checksum last written.
	known map[string]string
}

// New creates an Inbox over files.
func New(store Store, files *storage.FS, opts ...Option) *Inbox {
	in := &Inbox{
		store:  store,
		files:  files,
		logger: slog.Default(),
		known:  make(map[string]string),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Sync ingests every file whose checksum differs from the stored one and
// returns the number of reports written. Reports whose file is gone are kept.
func (in *Inbox) Sync(ctx context.Context) (int, error) {
	known, err := in.store.OriginChecksums(ctx)
	if err != nil {
		return 0, err
	}
	in.known = known

	infos, err := in.files.List("", ext)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, fi := range infos {
		if in.known[fi.Path] == fi.Checksum {
			continue
		}
		data, err := in.files.Read(fi.Path)
		if err != nil {
			in.logger.Warn("inbox: read failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			continue
		}
		ok, err := in.ingest(ctx, fi.Path, data)
		if err != nil {
			in.logger.Warn("inbox: ingest failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ingest writes data as the report of origin unless its checksum is known.
func (in *Inbox) ingest(ctx context.Context, origin string, data []byte) (bool, error) {
	sum := storage.Checksum(data)
	if in.known[origin] == sum {
		return false, nil
	}

	fm, body, err := report.SplitFrontmatter(data)
	if err != nil {
		in.logger.Warn("inbox: ignoring frontmatter", slog.String("path", origin), slog.String("error", err.Error()))
	}
	r := models.IntelReport{
		Name:       fm.Name,
		Content:    body,
		Status:     fm.Status,
		AlertCount: fm.AlertCount,
		Origin:     origin,
		Checksum:   sum,
	}
	if ts, ok := fm.Time(); ok {
		r.Timestamp = ts
	}
	if _, err := in.store.UpsertReportByOrigin(ctx, r); err != nil {
		return false, err
	}
	in.known[origin] = sum

	in.logger.Info("inbox: report ingested", slog.String("path", origin), slog.String("kind", report.Parse(body).Kind.String()))
	if in.onIngest != nil {
		in.onIngest(origin)
	}
	return true, nil
}

// Run performs the initial sync, then watches the inbox until ctx is
// cancelled. New subdirectories are watched as they appear. Removing a file
// leaves its report in place.
func (in *Inbox) Run(ctx context.Context) error {
	if n, err := in.Sync(ctx); err != nil {
		in.logger.Warn("inbox: initial sync failed", slog.String("error", err.Error()))
	} else {
		in.logger.Info("inbox: initial sync done", slog.Int("ingested", n))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := in.files.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	in.logger.Info("inbox: watching", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("inbox: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			in.handle(ctx, w, ev)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (in *Inbox) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(w, ev.Name); err != nil {
				in.logger.Warn("inbox: watch new dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			in.ingestDir(ctx, ev.Name)
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !wanted(ev.Name) {
		return
	}
	in.ingestPath(ctx, ev.Name)
}

func (in *Inbox) ingestPath(ctx context.Context, abs string) {
	rel, err := in.files.Rel(abs)
	if err != nil {
		return
	}
	data, err := in.files.Read(rel)
	if err != nil {
		// The file may be gone again by the time the event is handled.
		in.logger.Debug("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if _, err := in.ingest(ctx, rel, data); err != nil {
		in.logger.Warn("inbox: ingest failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

// ingestDir picks up files already present in a directory created at runtime.
func (in *Inbox) ingestDir(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !wanted(p) {
			return nil
		}
		in.ingestPath(ctx, p)
		return nil
	})
}

func wanted(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ext) && !strings.HasPrefix(name, ".")
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
