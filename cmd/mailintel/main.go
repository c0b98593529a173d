// Command mailintel runs the mail intelligence background worker: it
// polls the configured mail provider on a fixed interval, classifies and
// embeds whatever Pull found, and serves Ask requests over the Query
// Engine once a caller is wired up to it (see internal/bootstrap).
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bbangmxn/mailintel/config"
	"github.com/bbangmxn/mailintel/core/service/sync"
	"github.com/bbangmxn/mailintel/internal/bootstrap"
	"github.com/bbangmxn/mailintel/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Init(logger.Config{Level: logger.LevelInfo, Service: "mailintel"})

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.New(ctx, cfg)
	defer cleanup()
	if err != nil {
		logger.Fatal("failed to initialize dependencies: %v", err)
	}

	if deps.SyncController == nil {
		logger.Warn("classification pipeline unavailable, running idle until shutdown")
		<-ctx.Done()
		return
	}

	runPollLoop(ctx, deps, cfg)
}

// runPollLoop drives the Sync Controller's Pull and Classify+Embed
// operations on a fixed interval until ctx is cancelled, mirroring the
// teacher's Start/Stop worker shape without its guaranteed-delivery queue
// (sync is poll-driven with a stored cursor, not push-driven).
func runPollLoop(ctx context.Context, deps *bootstrap.Dependencies, cfg *config.Config) {
	interval := time.Duration(cfg.SyncPollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	logger.Info("starting sync poll loop, interval=%s", interval)
	triggerSync(ctx, deps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, draining in-flight sync operations")
			waitForShutdown(deps)
			return
		case <-ticker.C:
			triggerSync(ctx, deps)
		}
	}
}

func triggerSync(ctx context.Context, deps *bootstrap.Dependencies) {
	if !deps.SyncController.StartPull(ctx) {
		logger.Debug("pull already running, skipping this tick")
	}
	if !deps.SyncController.StartClassify(ctx) {
		logger.Debug("classify already running, skipping this tick")
	}
}

func waitForShutdown(deps *bootstrap.Dependencies) {
	deadline := time.After(shutdownTimeout)
	for {
		pull := deps.SyncController.PullProgress()
		classify := deps.SyncController.ClassifyProgress()
		if pull.Status != sync.StatusRunning && classify.Status != sync.StatusRunning {
			return
		}
		select {
		case <-deadline:
			logger.Warn("sync operations still running after shutdown timeout, exiting anyway")
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
