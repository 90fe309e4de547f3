package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/core"
)

// SQLiteSink writes triage records to a SQLite audit log and prunes
// rows older than the retention period in the background.
type SQLiteSink struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteSink opens or creates the audit log at dbPath. A
// non-positive retention keeps records forever.
func NewSQLiteSink(dbPath string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open SQLite database")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS triage_audit (
			processing_id TEXT PRIMARY KEY,
			email_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			risk_score INTEGER NOT NULL,
			actions_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to create audit table")
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_triage_audit_created_at ON triage_audit(created_at)
	`)
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to create audit index")
	}

	sink := &SQLiteSink{
		db:          db,
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if retention > 0 && cleanupFreq > 0 {
		go sink.startCleanupTask()
	}

	return sink, nil
}

// Append implements core.AuditSink.
func (s *SQLiteSink) Append(ctx context.Context, record core.TriageRecord) error {
	actionsJSON, err := json.Marshal(record.Actions)
	if err != nil {
		return eris.Wrap(err, "failed to encode actions")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO triage_audit (processing_id, email_id, user_id, category, risk_score, actions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ProcessingID, record.EmailID, record.UserID, record.Category, record.RiskScore,
		string(actionsJSON), record.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return eris.Wrap(err, "failed to insert audit record")
	}
	return nil
}

// Cleanup removes records older than the retention period.
func (s *SQLiteSink) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM triage_audit
		WHERE created_at <= ?
	`, cutoff)
	if err != nil {
		return eris.Wrap(err, "failed to prune audit records")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Pruned audit records", zap.Int64("pruned_count", rowsAffected))
	}
	return nil
}

// startCleanupTask prunes expired records on a fixed interval.
func (s *SQLiteSink) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to prune audit log", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop ends the cleanup task and closes the database connection.
func (s *SQLiteSink) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
