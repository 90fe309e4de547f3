package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/adapters/audit"
	"github.com/inboxforge/triage-engine/internal/config"
	"github.com/inboxforge/triage-engine/internal/core"
)

// AuditFactory creates audit sinks based on configuration
type AuditFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAuditFactory creates a new audit factory
func NewAuditFactory(cfg *config.Config, logger *zap.Logger) *AuditFactory {
	return &AuditFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAuditSink creates an audit sink based on the configuration
func (f *AuditFactory) CreateAuditSink() (core.AuditSink, error) {
	auditCfg := f.cfg.GetAudit()

	switch auditCfg.Type {
	case "memory":
		return audit.NewMemorySink(auditCfg.MemoryCapacity), nil
	case "sqlite":
		retention, err := f.cfg.GetDuration("audit.retention")
		if err != nil {
			return nil, fmt.Errorf("invalid audit retention: %w", err)
		}
		cleanupFreq, err := f.cfg.GetDuration("audit.cleanup_frequency")
		if err != nil {
			return nil, fmt.Errorf("invalid audit cleanup frequency: %w", err)
		}
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(auditCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return audit.NewSQLiteSink(auditCfg.SQLitePath, f.logger, retention, cleanupFreq)
	default:
		return nil, fmt.Errorf("unsupported audit sink type: %s", auditCfg.Type)
	}
}
