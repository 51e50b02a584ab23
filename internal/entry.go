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

	"github.com/starford/keyshift/internal/api"
	"github.com/starford/keyshift/internal/chartservice"
	"github.com/starford/keyshift/internal/index"
	"github.com/starford/keyshift/internal/mcpserver"
	"github.com/starford/keyshift/internal/sse"
	"github.com/starford/keyshift/internal/storage"
)

var _ chartservice.Notifier = (*sse.Broker)(nil)

// Components are the long-lived pieces shared by every command.
type Components struct {
	Store   storage.Provider
	DB      *index.DB
	Service *chartservice.Service
}

// Close releases the index database.
func (c *Components) Close() error {
	return c.DB.Close()
}

// Open prepares the library directory, opens the index and runs an initial
// sync so the service sees every chart on disk.
func Open(cfg *Config, logger *slog.Logger, opts ...chartservice.Option) (*Components, error) {
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	opts = append([]chartservice.Option{
		chartservice.WithOutputSuffix(cfg.Convert.OutputSuffix),
		chartservice.WithWorkers(cfg.Convert.Workers),
	}, opts...)

	return &Components{
		Store:   store,
		DB:      db,
		Service: chartservice.NewService(store, db, opts...),
	}, nil
}

// init applies opts and builds the default JSON logger writing to logOut.
func (a *application) init(opts []Option, logOut io.Writer) error {
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return fmt.Errorf("config is required")
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: a.config.App.LogLevel,
		}))
	}
	slog.SetDefault(a.logger)
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	if err := app.init(opts, os.Stdout); err != nil {
		return err
	}

	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch", cfg.Library.Watch),
		slog.Int("workers", cfg.Convert.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	comp, err := Open(cfg, logger, chartservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer comp.Close()

	apiRouter := api.NewRouter(comp.Service, api.RouterConfig{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		Token:          cfg.Auth.Token,
		AllowedOrigins: cfg.App.CORS.AllowedOrigins,
	}, broker)

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
		if err := comp.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	if cfg.Library.Watch {
		g.Go(func() error {
			if err := index.Watch(gCtx, comp.DB, comp.Store, logger, broker.PublishChartEvent); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless a
// logger is supplied.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	if err := app.init(opts, os.Stderr); err != nil {
		return err
	}

	comp, err := Open(app.config, app.logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	app.logger.Info("MCP server starting", slog.String("library_path", app.config.Library.Path))
	return mcpserver.New(comp.Service).ServeStdio()
}
