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

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/mcpserver"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/resolver"
	"github.com/starford/laguz/internal/source"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/watch"
)

// runtime is the wired object graph shared by all commands.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   cache.Store
	src     source.Source
	library *pipeline.Library
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("cache close failed", slog.String("error", err.Error()))
	}
}

func setup(ctx context.Context, opts []Option, sink progress.Sink) (*runtime, *application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source", cfg.Source.Kind),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.Path)
	if err != nil {
		// Ingestion still works without persistence.
		logger.Warn("cache unavailable, continuing without it", slog.String("error", err.Error()))
		store = cache.Noop{}
	}

	src := newSource(cfg, store, logger)
	p := pipeline.New(store, pipeline.Options{
		Workers:    cfg.Parse.Workers,
		Sequential: cfg.Parse.Sequential,
	}, logger)
	res := resolver.New(resolver.Options{Logger: logger})
	lib := pipeline.NewLibrary(p, src, store, res, sink, logger)

	return &runtime{cfg: cfg, logger: logger, store: store, src: src, library: lib}, app, nil
}

func newSource(cfg *Config, store cache.Store, logger *slog.Logger) source.Source {
	if cfg.Source.Kind == SourceGitHub {
		gh := cfg.Source.GitHub
		return source.NewGitHub(source.GitHubOptions{
			Owner:     gh.Owner,
			Repo:      gh.Repo,
			Token:     gh.Token,
			APIURL:    gh.APIURL,
			RawURL:    gh.RawURL,
			Extension: cfg.Source.Extension,
		}, store, logger)
	}
	return source.NewLocal(source.Session{Root: cfg.Source.Local.Path}, cfg.Source.Extension, store, logger)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, _, err := setup(ctx, opts, broker.PublishProgress)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	apiRouter := api.NewRouter(rt.library, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if rt.library.Status().LoadedAt.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial ingestion runs alongside the server so /progress and /events
	// report it live.
	g.Go(func() error {
		if err := rt.library.Reload(gCtx); err != nil {
			logger.Warn("initial load failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if root := cfg.Source.Local.Path; cfg.Watch.Enabled && cfg.Source.Kind == SourceLocal && root != "" {
		g.Go(func() error {
			return watch.Watch(gCtx, rt.library, watch.Options{
				Root:      root,
				Extension: cfg.Source.Extension,
				Debounce:  cfg.Watch.Debounce,
				Logger:    logger,
				OnEvent:   broker.PublishFileEvent,
			})
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

// errShutdown cancels the group so the watcher and loader stop with the
// server.
var errShutdown = errors.New("shutdown")

// RunMCP loads the vault once and serves it over stdio MCP.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, app, err := setup(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.library.Reload(ctx); err != nil {
		return fmt.Errorf("load vault: %w", err)
	}
	rt.logger.Info("MCP server starting", slog.Int("notes", rt.library.Status().Notes))
	return mcpserver.New(rt.library, app.version).ServeStdio()
}

// ClearCache drops every cached file, note and metadata record.
func ClearCache(ctx context.Context, opts ...Option) error {
	rt, _, err := setup(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	rt.logger.Info("Cache cleared", slog.String("path", rt.cfg.Cache.Path))
	return nil
}
