package factory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/adapters/bundlesync"
	"github.com/inboxforge/triage-engine/internal/bundle"
	"github.com/inboxforge/triage-engine/internal/config"
	"github.com/inboxforge/triage-engine/internal/ports"
)

// BundleFactory creates the bundle handle and its supporting pieces
// based on configuration
type BundleFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBundleFactory creates a new bundle factory
func NewBundleFactory(cfg *config.Config, logger *zap.Logger) *BundleFactory {
	return &BundleFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSyncer creates a bundle syncer based on the configuration
func (f *BundleFactory) CreateSyncer() (ports.BundleSyncer, error) {
	bundleCfg := f.cfg.GetBundle()

	switch bundleCfg.SyncType {
	case "local", "":
		return bundlesync.NewLocal(), nil
	case "s3":
		if bundleCfg.S3Bucket == "" {
			return nil, fmt.Errorf("bundle sync type s3 requires bundle.sync.s3_bucket")
		}
		return bundlesync.NewS3Sync(context.Background(), bundleCfg.S3Bucket, bundleCfg.S3Prefix, bundleCfg.Dir, f.logger)
	default:
		return nil, fmt.Errorf("unsupported bundle sync type: %s", bundleCfg.SyncType)
	}
}

// CreateHandle syncs the bundle directory once, loads it and wraps the
// result in a live handle. A failed initial sync falls back to the
// local copy; a failed load aborts startup.
func (f *BundleFactory) CreateHandle(syncer ports.BundleSyncer) (*bundle.Handle, error) {
	dir := f.cfg.GetString("bundle.dir")

	if _, err := syncer.Sync(context.Background()); err != nil {
		f.logger.Warn("Initial bundle sync failed, loading local copy",
			zap.String("dir", dir),
			zap.Error(err))
	}

	b, err := bundle.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	return bundle.NewHandle(b), nil
}

// CreateWatcher creates a filesystem watcher for the bundle directory
func (f *BundleFactory) CreateWatcher(handle *bundle.Handle) (*bundle.Watcher, error) {
	debounce, err := f.cfg.GetDuration("bundle.watch_debounce")
	if err != nil {
		return nil, fmt.Errorf("invalid bundle watch debounce: %w", err)
	}
	return bundle.NewWatcher(f.cfg.GetString("bundle.dir"), handle, f.logger, debounce), nil
}

// GetSyncInterval returns the configured remote sync interval
func (f *BundleFactory) GetSyncInterval() (time.Duration, error) {
	return f.cfg.GetDuration("bundle.sync.interval")
}
