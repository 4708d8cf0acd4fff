// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/intelboard/internal/api"
	"github.com/starford/intelboard/internal/apperr"
	"github.com/starford/intelboard/internal/auth"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/export"
	"github.com/starford/intelboard/internal/githubci"
	"github.com/starford/intelboard/internal/inbox"
	"github.com/starford/intelboard/internal/metrics"
	"github.com/starford/intelboard/internal/session"
	"github.com/starford/intelboard/internal/sources"
	"github.com/starford/intelboard/internal/storage"
	"github.com/starford/intelboard/internal/views"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("github_api", cfg.GitHub.APIURL),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m := metrics.New()

	// Open the document store; every committed write is counted.
	store, err := docstore.Open(cfg.SQLite.Path,
		docstore.WithLogger(logger),
		docstore.WithWriteHook(m.StoreWrite))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	provider, err := newProvider(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	exporter, closeRenderer, err := newExporter(cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeRenderer()

	manager := session.NewManager(provider, session.Deps{
		Store:    store,
		CI:       newCIClient(cfg),
		Exporter: exporter,
		Defaults: cfg.Defaults.SystemConfig(),
		Config: session.Config{
			DispatchReset: cfg.Status.DispatchReset,
			ExportReset:   cfg.Status.ExportReset,
		},
		OnActiveChange:   m.SessionsActive,
		OnWorkflowResult: m.WorkflowRequest,
		Logger:           logger,
	})

	renderer, err := views.NewRenderer()
	if err != nil {
		return fmt.Errorf("init views: %w", err)
	}

	apiRouter := api.NewRouter(api.Deps{
		Sessions:    manager,
		Sources:     sources.NewService(store, logger),
		Reports:     store,
		Views:       renderer,
		Cookie:      api.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure},
		IngestToken: cfg.Auth.IngestToken,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.DB().PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	// Dashboard, JSON API and ingest routes.
	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Expire idle sessions; ends every session on shutdown.
	g.Go(func() error {
		return manager.Run(gCtx)
	})

	// Watch the report inbox.
	if cfg.Inbox.Enabled {
		files, err := storage.MkdirFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		defer files.Close()
		watcher := inbox.New(store, files,
			inbox.WithLogger(logger),
			inbox.WithOnIngest(m.InboxReport))
		g.Go(func() error {
			if err := watcher.Run(gCtx); err != nil {
				logger.Error("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the background loops stop with the server.
var errShutdown = errors.New("shutdown")

func newProvider(ctx context.Context, cfg *Config, store *docstore.Store, logger *slog.Logger) (*auth.LocalProvider, error) {
	provider, err := auth.NewLocalProvider(store.DB(), auth.Config{
		Secret: cfg.Auth.SessionSecret,
		TTL:    cfg.Auth.SessionTTL,
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	op := cfg.Auth.BootstrapOperator
	if op.Enabled() {
		err := provider.AddOperator(ctx, op.Email, op.Password)
		switch {
		case err == nil:
			logger.Info("bootstrap operator created", slog.String("email", op.Email))
		case errors.Is(err, apperr.ErrAlreadyExists):
		default:
			return nil, fmt.Errorf("bootstrap operator: %w", err)
		}
	}

	ok, err := provider.HasOperators(ctx)
	if err != nil {
		return nil, fmt.Errorf("check operators: %w", err)
	}
	if !ok {
		logger.Warn("no operator accounts; create one with `intelboard operator add`")
	}
	return provider, nil
}

func newCIClient(cfg *Config) *githubci.Client {
	return githubci.New(githubci.Config{
		APIURL:       cfg.GitHub.APIURL,
		WorkflowFile: cfg.GitHub.WorkflowFile,
		Ref:          cfg.GitHub.Ref,
		Timeout:      cfg.GitHub.Timeout,
	})
}

func newExporter(cfg *Config, logger *slog.Logger, m *metrics.Metrics) (*export.Exporter, func(), error) {
	chrome := export.NewChromeRenderer(export.ChromeConfig{
		RemoteURL: cfg.Export.ChromeURL,
		Timeout:   cfg.Export.Timeout,
		NoSandbox: cfg.Export.NoSandbox,
	}, logger)
	closeFn := func() {
		if err := chrome.Close(); err != nil {
			logger.Warn("close chrome", slog.String("error", err.Error()))
		}
	}

	opts := []export.Option{
		export.WithLogger(logger),
		export.WithResultHook(m.ReportExport),
	}
	if cfg.Export.ArchivePath != "" {
		archive, err := storage.MkdirFS(cfg.Export.ArchivePath)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("init export archive: %w", err)
		}
		closeChrome := closeFn
		closeFn = func() {
			closeChrome()
			_ = archive.Close()
		}
		opts = append(opts, export.WithArchive(archive))
	}
	return export.NewExporter(chrome, opts...), closeFn, nil
}
