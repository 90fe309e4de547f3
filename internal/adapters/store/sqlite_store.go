package store

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/core"
)

// SQLiteStore reads policies, weights and aggregates from a SQLite
// database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		condition_json TEXT NOT NULL,
		action TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		threshold REAL NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		params_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS user_weights (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		weight REAL NOT NULL,
		PRIMARY KEY (user_id, feature)
	)`,
	`CREATE TABLE IF NOT EXISTS user_aggregates (
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		ratio REAL NOT NULL,
		PRIMARY KEY (user_id, category)
	)`,
}

// NewSQLiteStore opens or creates the triage store at dbPath.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open SQLite database")
	}
	for _, ddl := range sqliteSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "failed to create store tables")
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Snapshot implements core.PolicySource.
func (s *SQLiteStore) Snapshot(ctx context.Context) (core.PolicySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectPolicies)
	if err != nil {
		return core.PolicySnapshot{}, eris.Wrap(err, "failed to query policies")
	}
	defer rows.Close()
	return collectPolicies(rows, s.logger)
}

// Weights implements core.WeightSource.
func (s *SQLiteStore) Weights(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, selectWeights, userID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query user weights")
	}
	defer rows.Close()
	return collectWeights(rows)
}

// Aggregates implements core.AggregateSource.
func (s *SQLiteStore) Aggregates(ctx context.Context, userID string) (core.AggregateStats, error) {
	rows, err := s.db.QueryContext(ctx, selectAggregates, userID)
	if err != nil {
		return core.AggregateStats{}, eris.Wrap(err, "failed to query user aggregates")
	}
	defer rows.Close()
	return collectAggregates(rows)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
