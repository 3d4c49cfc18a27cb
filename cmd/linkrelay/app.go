package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"linkrelay/internal/bus"
	"linkrelay/internal/config"
	"linkrelay/internal/dispatcher"
	"linkrelay/internal/history"
	"linkrelay/internal/metrics"
	"linkrelay/internal/retriever"
	"linkrelay/internal/worker"
)

// relay is the message bus, retrievers and dispatcher built from one config.
type relay struct {
	bus        *bus.InMemoryBus
	dispatcher *dispatcher.Dispatcher
	pool       *worker.Pool
	history    *history.SQLiteStore // nil when history is disabled
}

func newRelay(cfg *config.Config) (*relay, error) {
	if err := os.MkdirAll(cfg.Downloads.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	r := &relay{
		bus: bus.New(100, logger),
		pool: worker.NewPool(worker.PoolConfig{
			Name:   "downloads",
			Size:   cfg.Downloads.Workers,
			Logger: logger,
		}),
	}

	dcfg := dispatcher.Config{
		Bus: r.bus,
		YouTube: retriever.NewYouTube(retriever.YouTubeConfig{
			BinaryPath:  cfg.YouTube.BinaryPath,
			TempDir:     cfg.Downloads.TempDir,
			Format:      cfg.YouTube.Format,
			MaxFileSize: cfg.YouTube.MaxFileBytes,
			Logger:      logger,
		}),
		Instagram: retriever.NewInstagram(retriever.InstagramConfig{
			Endpoint:  cfg.Instagram.Endpoint,
			UserAgent: cfg.Instagram.UserAgent,
			Timeout:   time.Duration(cfg.Instagram.TimeoutSeconds) * time.Second,
			Logger:    logger,
		}),
		Pool:        r.pool,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentMessages,
	}

	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			r.bus.Close()
			return nil, fmt.Errorf("history store: %w", err)
		}
		r.history = store
		dcfg.History = store
	}

	r.dispatcher = dispatcher.New(dcfg)
	metrics.WatchPool(r.pool)
	return r, nil
}

func (r *relay) Close() {
	r.bus.Close()
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			logger.Warn("closing history store", "err", err)
		}
	}
}

// setupLogger replaces the global logger with one at the configured level,
// optionally teeing to general.logFile. The returned func closes the file.
func setupLogger(cfg *config.Config) (func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closer, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
