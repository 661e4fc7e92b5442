// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/claude-mem/daemon/internal/intake"
	"github.com/claude-mem/daemon/internal/proctrack"
	"github.com/claude-mem/daemon/internal/queue"
	"github.com/claude-mem/daemon/internal/sessionstore"
	"github.com/claude-mem/daemon/internal/worker"
	"github.com/claude-mem/daemon/lib/clock"
	"github.com/claude-mem/daemon/lib/config"
	"github.com/claude-mem/daemon/lib/llm"
	"github.com/claude-mem/daemon/lib/process"
	"github.com/claude-mem/daemon/lib/service"
	"github.com/claude-mem/daemon/lib/sqlitepool"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		settingsPath string
		showVersion  bool
	)
	flag.StringVar(&configPath, "config", "", "path to the daemon config file (overrides CLAUDE_MEM_DAEMON_CONFIG)")
	flag.StringVar(&settingsPath, "settings", "", "path to the LLM settings file (overrides CLAUDE_MEM_SETTINGS)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("claude-mem-daemon (development build)")
		return nil
	}

	daemonConfig, err := loadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	settings, err := loadSettings(settingsPath)
	if err != nil {
		return err
	}
	if err := daemonConfig.EnsureDatabaseDir(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	realClock := clock.Real()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   daemonConfig.DatabasePath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	q, err := queue.Open(ctx, queue.Config{
		Pool:                      pool,
		Clock:                     realClock,
		Logger:                    logger,
		ToolResponseTruncateBytes: daemonConfig.ToolResponseTruncateBytes,
	})
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}

	store, err := sessionstore.Open(ctx, sessionstore.Config{
		Pool:   pool,
		Clock:  realClock,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	llmClient := llm.New(llm.ClientConfig{
		Provider:         settings.Provider,
		OpenRouterAPIKey: settings.OpenRouter.APIKey,
		OpenRouterModel:  settings.OpenRouter.Model,
		GeminiAPIKey:     settings.Gemini.APIKey,
		GeminiModel:      settings.Gemini.Model,
		Timeout:          daemonConfig.LLMTimeout,
	})

	eventWorker := worker.NewEventWorker(q, store, llmClient, realClock, logger, worker.EventWorkerConfig{
		TickInterval:            daemonConfig.EventWorker.TickInterval,
		BatchSize:               daemonConfig.EventWorker.BatchSize,
		MaxRetries:              daemonConfig.MaxRetries,
		StallThreshold:          daemonConfig.StallThreshold,
		RetentionWindow:         daemonConfig.RetentionWindow,
		CleanupEveryNTicks:      daemonConfig.EventWorker.CleanupEveryNTicks,
		StallReleaseEveryNTicks: daemonConfig.EventWorker.StallReleaseEveryNTicks,
	})
	summaryWorker := worker.NewSummaryWorker(q, store, llmClient, realClock, logger, worker.SummaryWorkerConfig{
		TickInterval:            daemonConfig.SummaryWorker.TickInterval,
		BatchSize:               daemonConfig.SummaryWorker.BatchSize,
		MaxRetries:              daemonConfig.MaxRetries,
		StallThreshold:          daemonConfig.StallThreshold,
		RetentionWindow:         daemonConfig.RetentionWindow,
		CleanupEveryNTicks:      daemonConfig.SummaryWorker.CleanupEveryNTicks,
		StallReleaseEveryNTicks: daemonConfig.SummaryWorker.StallReleaseEveryNTicks,
	})

	tracker := proctrack.NewTracker(realClock, logger)
	reaper, err := proctrack.NewReaper(proctrack.Config{
		Tracker:         tracker,
		Clock:           realClock,
		Logger:          logger,
		Signature:       daemonConfig.Reaper.Signature,
		MaxAge:          daemonConfig.Reaper.MaxAge,
		GracefulTimeout: daemonConfig.GracefulTerminationTimeout,
	})
	if err != nil {
		return fmt.Errorf("constructing reaper: %w", err)
	}

	handler := intake.NewHandler(intake.Config{
		Queue:   q,
		Store:   store,
		Tracker: tracker,
		Reaper:  reaper,
		Logger:  logger,
	})
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: daemonConfig.ListenAddress,
		Handler: handler,
		Logger:  logger,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		eventWorker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		summaryWorker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReaperLoop(ctx, reaper, realClock, daemonConfig.Reaper.ScanInterval, logger)
	}()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ctx)
	}()

	<-httpServer.Ready()
	logger.Info("claude-mem-daemon running", "address", httpServer.Addr().String(), "database", daemonConfig.DatabasePath)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}

	wg.Wait()

	terminated, failed := tracker.TerminateAll(daemonConfig.GracefulTerminationTimeout)
	if failed > 0 {
		logger.Warn("shutdown: some tracked processes did not terminate cleanly", "terminated", terminated, "failed", failed)
	} else {
		logger.Info("shutdown complete", "terminated", terminated)
	}

	return nil
}

// runReaperLoop ticks reaper.Scan every scanInterval until ctx is
// canceled, mirroring EventWorker/SummaryWorker's Run shape.
func runReaperLoop(ctx context.Context, reaper *proctrack.Reaper, clk clock.Clock, scanInterval time.Duration, logger *slog.Logger) {
	ticker := clk.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := reaper.Scan()
			if err != nil {
				logger.Error("reaper scan failed", "error", err)
				continue
			}
			if result.Found > 0 {
				logger.Info("reaper scan", "found", result.Found, "killed", result.Killed, "failed", result.Failed)
			}
		}
	}
}

// loadDaemonConfig resolves the daemon config from --config, falling
// back to CLAUDE_MEM_DAEMON_CONFIG, falling back to
// [config.DefaultDaemonConfig] when neither is set.
func loadDaemonConfig(configPath string) (*config.DaemonConfig, error) {
	if configPath != "" {
		return config.LoadDaemonConfigFile(configPath)
	}
	if os.Getenv("CLAUDE_MEM_DAEMON_CONFIG") != "" {
		return config.LoadDaemonConfig()
	}
	cfg := config.DefaultDaemonConfig()
	return cfg, cfg.Validate()
}

// loadSettings resolves LLM settings the same way loadDaemonConfig
// resolves the daemon config.
func loadSettings(settingsPath string) (*config.Settings, error) {
	if settingsPath != "" {
		return config.LoadSettingsFile(settingsPath)
	}
	if os.Getenv("CLAUDE_MEM_SETTINGS") != "" {
		return config.LoadSettings()
	}
	return config.DefaultSettings(), nil
}
