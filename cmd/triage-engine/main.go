package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/bundle"
	"github.com/inboxforge/triage-engine/internal/config"
	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/di"
	"github.com/inboxforge/triage-engine/internal/factory"
	"github.com/inboxforge/triage-engine/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	runner ports.Runner,
	watcher *bundle.Watcher,
	handle *bundle.Handle,
	syncer ports.BundleSyncer,
	bundleFactory *factory.BundleFactory,
	store factory.TriageStore,
	auditSink core.AuditSink,
) error {
	defer logger.Sync()

	bundleCfg := cfg.GetBundle()

	// Watch the bundle directory for local edits
	if bundleCfg.Watch {
		if err := watcher.Start(); err != nil {
			logger.Warn("Failed to watch bundle directory", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	// Start the feed
	if err := runner.Start(); err != nil {
		logger.Fatal("Failed to start feed", zap.Error(err))
		return err
	}

	// Periodic remote sync
	var syncTick <-chan time.Time
	if bundleCfg.SyncType == "s3" {
		interval, err := bundleFactory.GetSyncInterval()
		if err != nil {
			logger.Error("Invalid bundle sync interval, remote sync disabled", zap.Error(err))
		} else {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			syncTick = ticker.C
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

loop:
	for {
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
			break loop
		case <-runner.Done():
			logger.Info("Input exhausted, shutting down...")
			break loop
		case <-hupCh:
			logger.Info("Reloading bundle on SIGHUP")
			syncAndReload(syncer, handle, bundleCfg.Dir, logger, true)
		case <-syncTick:
			syncAndReload(syncer, handle, bundleCfg.Dir, logger, false)
		}
	}

	// Stop the feed
	if err := runner.Stop(); err != nil {
		logger.Error("Failed to stop feed", zap.Error(err))
	}

	// Close the policy store
	if err := store.Close(); err != nil {
		logger.Error("Failed to close policy store", zap.Error(err))
	}

	// Stop the audit sink if needed
	if stopper, ok := auditSink.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}

// syncAndReload pulls remote bundle objects and swaps the handle when
// anything changed. force reloads even when the sync saw no changes.
func syncAndReload(syncer ports.BundleSyncer, handle *bundle.Handle, dir string, logger *zap.Logger, force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	changed, err := syncer.Sync(ctx)
	if err != nil {
		logger.Error("Bundle sync failed, keeping active bundle", zap.Error(err))
		return
	}
	if !changed && !force {
		return
	}

	b, err := bundle.Reload(dir, handle)
	if err != nil {
		logger.Error("Bundle reload failed, keeping active bundle", zap.Error(err))
		return
	}
	logger.Info("Bundle reloaded",
		zap.String("version", b.Version),
		zap.Bool("degraded", b.Degraded()))
}
