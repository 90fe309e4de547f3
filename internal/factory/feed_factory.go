package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/adapters/feed"
	"github.com/inboxforge/triage-engine/internal/config"
	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/ports"
)

// FeedFactory creates email feed runners based on configuration
type FeedFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFeedFactory creates a new feed factory
func NewFeedFactory(cfg *config.Config, logger *zap.Logger) *FeedFactory {
	return &FeedFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRunner creates a feed runner based on the configuration
func (f *FeedFactory) CreateRunner(service *core.TriageService) (ports.Runner, error) {
	feedCfg := f.cfg.GetFeed()

	switch feedCfg.Type {
	case "stdio":
		return feed.NewStdioFeed(service, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported feed type: %s", feedCfg.Type)
	}
}
