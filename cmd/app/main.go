package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/intelboard/internal"
	pkgconfig "github.com/starford/intelboard/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()

	// An explicit --config must exist; the default path may be absent when
	// the environment carries the settings.
	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func seed(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Seed(ctx, cfg, cmd.Bool("missing-only"), os.Stdout)
}

func cleanup(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Cleanup(ctx, cfg, os.Stdout)
}

func addOperator(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.AddOperator(ctx, cfg, cmd.String("email"), cmd.String("password"), os.Stdout)
}

func mcp(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(cfg)
}

func main() {
	cmd := &cli.Command{
		Name:   "intelboard",
		Usage:  "Integration readiness dashboard for monitored vendor documentation and intel reports",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the dashboard server (default)",
				Action: serve,
			},
			{
				Name:   "seed",
				Usage:  "Write the default monitored sources",
				Action: seed,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "missing-only",
						Usage: "Skip defaults whose name already exists",
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Delete sources with a blank name or url",
				Action: cleanup,
			},
			{
				Name:  "operator",
				Usage: "Manage operator accounts",
				Commands: []*cli.Command{
					{
						Name:   "add",
						Usage:  "Create an operator account",
						Action: addOperator,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "email", Usage: "Operator email", Required: true},
							&cli.StringFlag{
								Name:     "password",
								Usage:    "Operator password (at least 8 characters)",
								Required: true,
								Sources:  cli.EnvVars("INTELBOARD_OPERATOR_PASSWORD"),
							},
						},
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve sources and reports to MCP clients over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
