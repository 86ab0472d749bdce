package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/config"
	"taskboard/internal/handlers"
	"taskboard/internal/kv"
	"taskboard/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("TASKBOARD_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg)

	// Ensure data directory exists
	if err := ensureDataDir(cfg); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}

	backend, err := kv.Open(cfg.KV())
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, backend, store.WithDefaultLimit(cfg.DefaultPageSize))
	if err != nil {
		logger.Fatalf("Failed to load tasks: %v", err)
	}
	cancel := s.Subscribe(changeLogger(ctx, logger, backend))
	defer cancel()

	h := handlers.New(s, logger)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	h.Routes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}()

	logger.WithFields(log.Fields{
		"addr":   srv.Addr,
		"driver": cfg.StoreDriver,
		"tasks":  s.Len(),
	}).Info("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}

// changeLogger logs every collection change at debug level, with the stored
// write count when the backend keeps one.
func changeLogger(ctx context.Context, logger *log.Logger, backend kv.Store) func(store.Change) {
	versioned, _ := backend.(kv.Versioned)
	return func(c store.Change) {
		if !logger.IsLevelEnabled(log.DebugLevel) {
			return
		}
		entry := logger.WithFields(log.Fields{
			"kind":    c.Kind,
			"task_id": c.TaskID,
			"size":    c.Size,
		})
		if versioned != nil {
			if v, err := versioned.Version(ctx, store.CollectionKey); err == nil {
				entry = entry.WithField("version", v)
			} else {
				entry = entry.WithError(err)
			}
		}
		entry.Debug("task collection changed")
	}
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func ensureDataDir(cfg *config.Config) error {
	switch cfg.StoreDriver {
	case kv.DriverSQLite:
		if cfg.StoreDSN == ":memory:" {
			return nil
		}
		return os.MkdirAll(filepath.Dir(cfg.StoreDSN), 0755)
	default:
		return nil
	}
}
