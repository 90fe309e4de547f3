package store

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/core"
)

// MySQLStore reads policies, weights and aggregates from a MySQL
// database shared with the dashboard.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS policies (
		id VARCHAR(128) PRIMARY KEY,
		condition_json TEXT NOT NULL,
		action VARCHAR(64) NOT NULL,
		rationale TEXT NOT NULL,
		threshold DOUBLE NOT NULL DEFAULT 0,
		priority INT NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		params_json TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_weights (
		user_id VARCHAR(128) NOT NULL,
		feature VARCHAR(255) NOT NULL,
		weight DOUBLE NOT NULL,
		PRIMARY KEY (user_id, feature)
	)`,
	`CREATE TABLE IF NOT EXISTS user_aggregates (
		user_id VARCHAR(128) NOT NULL,
		category VARCHAR(64) NOT NULL,
		ratio DOUBLE NOT NULL,
		PRIMARY KEY (user_id, category)
	)`,
}

// NewMySQLStore connects to the triage store behind the given DSN.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open MySQL database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to connect to MySQL database")
	}
	for _, ddl := range mysqlSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "failed to create store tables")
		}
	}
	return &MySQLStore{db: db, logger: logger}, nil
}

// Snapshot implements core.PolicySource.
func (s *MySQLStore) Snapshot(ctx context.Context) (core.PolicySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectPolicies)
	if err != nil {
		return core.PolicySnapshot{}, eris.Wrap(err, "failed to query policies")
	}
	defer rows.Close()
	return collectPolicies(rows, s.logger)
}

// Weights implements core.WeightSource.
func (s *MySQLStore) Weights(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, selectWeights, userID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query user weights")
	}
	defer rows.Close()
	return collectWeights(rows)
}

// Aggregates implements core.AggregateSource.
func (s *MySQLStore) Aggregates(ctx context.Context, userID string) (core.AggregateStats, error) {
	rows, err := s.db.QueryContext(ctx, selectAggregates, userID)
	if err != nil {
		return core.AggregateStats{}, eris.Wrap(err, "failed to query user aggregates")
	}
	defer rows.Close()
	return collectAggregates(rows)
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
