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

	"github.com/starford/shelf/internal/api"
	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/collection"
	"github.com/starford/shelf/internal/mcpserver"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/sse"
	"github.com/starford/shelf/internal/storage"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize logger.
	logger := newLogger(cfg.App, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("storage_format", cfg.Storage.Format),
		slog.Bool("storage_watch", cfg.Storage.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	store, err := openStore(cfg.Storage, logger, broker.PublishStoreEvent)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHTTPHandler(store, cfg.Auth, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start index watcher.
	if cfg.Storage.Watch {
		w, err := collection.NewWatcher(store, logger)
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		g.Go(func() error {
			return w.Run(gCtx)
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

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// stdout carries the protocol, so logs go to stderr.
	logger := newLogger(cfg.App, os.Stderr)
	slog.SetDefault(logger)

	store, err := openStore(cfg.Storage, logger, nil)
	if err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	g, gCtx := errgroup.WithContext(watchCtx)
	if cfg.Storage.Watch {
		w, err := collection.NewWatcher(store, logger)
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	srv := mcpserver.New(store, app.version)
	logger.Info("MCP server starting on stdio", slog.String("storage_path", cfg.Storage.Path))
	serveErr := srv.ServeStdio()

	stopWatch()
	if err := g.Wait(); err != nil {
		return err
	}
	return serveErr
}

// NewHTTPHandler builds the root router: health probes, the REST API under
// /api and the SSE stream at /api/events.
func NewHTTPHandler(store *collection.Store, auth AuthConfig, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.ListCollections(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(store, auth.AuthEnabled(), auth.Token, events))
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, `{"status":"`+status+`"}`)
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openStore initializes the storage root and the collection store over it.
func openStore(cfg StorageConfig, logger *slog.Logger, onEvent func(models.Event)) (*collection.Store, error) {
	format, err := codec.ParseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}
	fs, err := storage.NewFS(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return collection.NewStore(fs, codec.New(format),
		collection.WithLogger(logger),
		collection.WithEventHandler(onEvent),
		collection.WithReadConcurrency(cfg.ReadConcurrency),
	), nil
}
