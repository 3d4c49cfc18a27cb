package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkrelay/internal/channel"
	"linkrelay/internal/config"
	"linkrelay/internal/dispatcher"
	"linkrelay/internal/metrics"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long in-flight messages may finish after a
// stop signal. Downloads have no timeout of their own.
const shutdownTimeout = 60 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the Telegram relay",
		Long:  "Polls Telegram for messages and replies with the linked videos. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefaults(resolveConfigPath())
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRelay(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		AllowFrom:   cfg.Telegram.AllowFrom,
		PollTimeout: cfg.Telegram.PollTimeout,
		SendRate:    cfg.Telegram.SendRate,
		SendBurst:   cfg.Telegram.SendBurst,
		Debug:       cfg.Telegram.Debug,
		Greeting:    dispatcher.TextGreeting,
		Logger:      logger,
	})

	channelErr := make(chan error, 1)
	go func() {
		channelErr <- telegramCh.Start(ctx, r.bus)
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		r.dispatcher.Run(ctx)
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics)
	}

	logger.Info("gateway started. Press Ctrl+C to stop.",
		"workers", cfg.Downloads.Workers,
		"temp_dir", cfg.Downloads.TempDir,
		"history", cfg.History.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-channelErr:
		if err != nil {
			runErr = fmt.Errorf("telegram channel: %w", err)
			stop()
		}
	}
	logger.Info("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Run must stop adding work before Wait.
		<-runDone
		r.dispatcher.Wait()
		telegramCh.Stop()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = errors.New("shutdown timed out")
		}
	}
	return runErr
}

func startMetricsServer(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metrics.Default.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.Addr, "endpoint", cfg.Endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	return srv
}
