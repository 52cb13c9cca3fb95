package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/laguz/internal"
	pkgconfig "github.com/starford/laguz/pkg/config"
)

var version = "dev"

type runFunc func(context.Context, ...internal.Option) error

func action(fn runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		read, err := pkgconfig.LoadOptional(configPath, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if !read {
			slog.Warn("config file not found, using defaults", slog.String("path", configPath))
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}

		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "laguz",
		Usage:   "Ingest a Markdown vault from GitHub or disk and serve it with resolved links and transclusions",
		Version: version,
		Action:  action(internal.Run),
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
				Usage:  "Serve the vault over HTTP and SSE (default)",
				Action: action(internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the vault to MCP clients over stdio",
				Action: action(internal.RunMCP),
			},
			{
				Name:   "clear-cache",
				Usage:  "Drop all cached files, notes and metadata",
				Action: action(internal.ClearCache),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
