package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/intelboard/internal/auth"
	"github.com/starford/intelboard/internal/docstore"
	"github.com/starford/intelboard/internal/mcpserver"
	"github.com/starford/intelboard/internal/sources"
)

// Version is reported by the MCP server.
var Version = "dev"

// maintenance holds what the one-shot commands share: a store and a logger
// writing to stderr, so stdout stays free for command output or MCP.
type maintenance struct {
	store  *docstore.Store
	logger *slog.Logger
}

func openMaintenance(cfg *Config) (*maintenance, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	store, err := docstore.Open(cfg.SQLite.Path, docstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &maintenance{store: store, logger: logger}, nil
}

func (m *maintenance) close() {
	if err := m.store.Close(); err != nil {
		m.logger.Warn("close store", slog.String("error", err.Error()))
	}
}

// Seed writes the default monitored sources. With missingOnly, defaults whose
// name already exists are skipped.
func Seed(ctx context.Context, cfg *Config, missingOnly bool, out io.Writer) error {
	m, err := openMaintenance(cfg)
	if err != nil {
		return err
	}
	defer m.close()

	svc := sources.NewService(m.store, m.logger)
	seed := svc.Seed
	if missingOnly {
		seed = svc.SeedMissing
	}
	created, err := seed(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, src := range created {
		fmt.Fprintf(out, "%s\t%s\t%s\n", src.ID, src.Category, src.Name)
	}
	fmt.Fprintf(out, "seeded %d sources\n", len(created))
	return nil
}

// Cleanup removes sources with a blank name or url.
func Cleanup(ctx context.Context, cfg *Config, out io.Writer) error {
	m, err := openMaintenance(cfg)
	if err != nil {
		return err
	}
	defer m.close()

	res, err := sources.NewService(m.store, m.logger).Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	fmt.Fprintf(out, "scanned %d, deleted %d\n", res.Scanned, res.Deleted)
	return nil
}

// AddOperator creates an operator account.
func AddOperator(ctx context.Context, cfg *Config, email, password string, out io.Writer) error {
	m, err := openMaintenance(cfg)
	if err != nil {
		return err
	}
	defer m.close()

	provider, err := auth.NewLocalProvider(m.store.DB(), auth.Config{
		Secret: cfg.Auth.SessionSecret,
		TTL:    cfg.Auth.SessionTTL,
	}, auth.WithLogger(m.logger))
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if err := provider.AddOperator(ctx, email, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "operator %s created\n", email)
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(cfg *Config) error {
	m, err := openMaintenance(cfg)
	if err != nil {
		return err
	}
	defer m.close()

	srv := mcpserver.New(sources.NewService(m.store, m.logger), m.store, Version)
	m.logger.Info("MCP server starting on stdio", slog.String("sqlite_path", cfg.SQLite.Path))
	return srv.ServeStdio()
}
