// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notebundle/internal/api"
	"github.com/starford/notebundle/internal/handoff"
	"github.com/starford/notebundle/internal/index"
	"github.com/starford/notebundle/internal/mcpserver"
	"github.com/starford/notebundle/internal/noteservice"
	"github.com/starford/notebundle/internal/pkgcodec"
	"github.com/starford/notebundle/internal/sse"
	"github.com/starford/notebundle/internal/storage"
)

// App holds the components every command works with.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Library storage.Provider
	DB      *index.DB
	Service *noteservice.Service

	version string
}

// NewApp wires storage, the catalog and the library service from the
// configuration. Close releases the catalog.
func NewApp(opts ...Option) (*App, error) {
	a := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("extension", cfg.Library.Extension),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	lib, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc := noteservice.NewService(lib, db, cfg.Library.Extension, documentOptions(cfg, logger)...)
	return &App{Config: cfg, Logger: logger, Library: lib, DB: db, Service: svc, version: a.version}, nil
}

// documentOptions translates the configuration into options for every
// opened document.
func documentOptions(cfg *Config, logger *slog.Logger) []noteservice.Option {
	codec := []pkgcodec.Option{pkgcodec.WithThumbnailSize(cfg.Preview.ThumbnailSize)}
	if cfg.Preview.Strict {
		codec = append(codec, pkgcodec.WithStrictPreview())
	}
	opts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithCodecOptions(codec...),
	}
	if cfg.App.Handoff {
		sys := handoff.New(handoff.WithLogger(logger))
		opts = append(opts, noteservice.WithMapHandoff(sys), noteservice.WithExternalOpener(sys))
	}
	return opts
}

// Close releases the catalog.
func (a *App) Close() error {
	return a.DB.Close()
}

// Run starts the HTTP server and library watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Serve(ctx)
}

// RunMCP serves the MCP protocol on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := NewApp(append([]Option{WithLogOutput(io.Discard)}, opts...)...)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.Sync(ctx); err != nil {
		app.Logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(app.Service, app.version, app.Logger).ServeStdio()
}

// Serve runs the HTTP API and the library watcher until ctx is cancelled or
// a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	if err := a.Service.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sessions := api.NewSessions(broker)
	apiRouter := api.NewRouter(a.Service, sessions, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := a.DB.Ping(); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog current and tell SSE clients about it.
	g.Go(func() error {
		return index.Watch(gCtx, a.DB, a.Library, cfg.Library.Extension, logger, broker.PublishCatalogEvent)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		logger.Info("Shutting down server...", slog.Int("open_sessions", sessions.Len()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
