package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/action"
	"github.com/inboxforge/triage-engine/internal/bundle"
	"github.com/inboxforge/triage-engine/internal/config"
	"github.com/inboxforge/triage-engine/internal/confidence"
	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/factory"
	"github.com/inboxforge/triage-engine/internal/logging"
	"github.com/inboxforge/triage-engine/internal/policy"
	"github.com/inboxforge/triage-engine/internal/ports"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAuditFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewBundleFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFeedFactory); err != nil {
		return nil, err
	}

	// Register policy store and its read-only views
	if err := container.Provide(func(f *factory.StoreFactory) (factory.TriageStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s factory.TriageStore) core.PolicySource {
		return s
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s factory.TriageStore) core.WeightSource {
		return s
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s factory.TriageStore) core.AggregateSource {
		return s
	}); err != nil {
		return nil, err
	}

	// Register audit sink
	if err := container.Provide(func(f *factory.AuditFactory) (core.AuditSink, error) {
		return f.CreateAuditSink()
	}); err != nil {
		return nil, err
	}

	// Register bundle syncer, handle and watcher
	if err := container.Provide(func(f *factory.BundleFactory) (ports.BundleSyncer, error) {
		return f.CreateSyncer()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.BundleFactory, syncer ports.BundleSyncer) (*bundle.Handle, error) {
		return f.CreateHandle(syncer)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(h *bundle.Handle) core.EngineSource {
		return h
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.BundleFactory, h *bundle.Handle) (*bundle.Watcher, error) {
		return f.CreateWatcher(h)
	}); err != nil {
		return nil, err
	}

	// Register action registry and policy applier
	if err := container.Provide(action.NewRegistry); err != nil {
		return nil, err
	}
	if err := container.Provide(func(registry *action.Registry, logger *zap.Logger) core.PolicyApplier {
		return policy.NewEngine(registry, logger)
	}); err != nil {
		return nil, err
	}

	// Register confidence estimator
	if err := container.Provide(func() core.ConfidenceEstimator {
		return confidence.NewEstimator()
	}); err != nil {
		return nil, err
	}

	// Register label threshold and batch workers
	if err := container.Provide(func(cfg *config.Config) float64 {
		return cfg.GetEngine().LabelThreshold
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) int {
		return cfg.GetEngine().BatchWorkers
	}); err != nil {
		return nil, err
	}

	// Register triage service
	if err := container.Provide(core.NewTriageService); err != nil {
		return nil, err
	}

	// Register feed runner
	if err := container.Provide(func(f *factory.FeedFactory, service *core.TriageService) (ports.Runner, error) {
		return f.CreateRunner(service)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
