// Package store provides the policy, weight and aggregate sources the
// triage service reads. The engine consumes these tables strictly
// read-only; the dashboard and the feedback-aggregation job write
// them.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/core"
)

// collectPolicies scans policy rows into a snapshot. Revision is a
// digest of the stored rows, so compiled policy sets are reused until
// the stored set actually changes.
func collectPolicies(rows *sql.Rows, logger *zap.Logger) (core.PolicySnapshot, error) {
	digest := sha256.New()
	var policies []core.Policy
	for rows.Next() {
		var p core.Policy
		var conditionJSON, paramsJSON string
		if err := rows.Scan(&p.ID, &conditionJSON, &p.Action, &p.Rationale, &p.Threshold, &p.Priority, &p.Enabled, &paramsJSON); err != nil {
			return core.PolicySnapshot{}, eris.Wrap(err, "failed to scan policy row")
		}
		p.Condition = json.RawMessage(conditionJSON)
		if paramsJSON != "" && paramsJSON != "{}" {
			if err := json.Unmarshal([]byte(paramsJSON), &p.Params); err != nil {
				logger.Warn("Ignoring malformed policy params",
					zap.String("policy_id", p.ID),
					zap.Error(err))
				p.Params = nil
			}
		}
		fmt.Fprintf(digest, "%s\x00%s\x00%s\x00%s\x00%g\x00%d\x00%t\x00%s\x00",
			p.ID, conditionJSON, p.Action, p.Rationale, p.Threshold, p.Priority, p.Enabled, paramsJSON)
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return core.PolicySnapshot{}, eris.Wrap(err, "failed to read policy rows")
	}
	return core.PolicySnapshot{
		Revision: hex.EncodeToString(digest.Sum(nil))[:16],
		Policies: policies,
	}, nil
}

// collectWeights scans (feature, weight) rows into a map.
func collectWeights(rows *sql.Rows) (map[string]float64, error) {
	weights := make(map[string]float64)
	for rows.Next() {
		var feature string
		var weight float64
		if err := rows.Scan(&feature, &weight); err != nil {
			return nil, eris.Wrap(err, "failed to scan weight row")
		}
		weights[feature] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "failed to read weight rows")
	}
	return weights, nil
}

// collectAggregates scans (category, ratio) rows into aggregate stats.
func collectAggregates(rows *sql.Rows) (core.AggregateStats, error) {
	ratios := make(map[string]float64)
	for rows.Next() {
		var category string
		var ratio float64
		if err := rows.Scan(&category, &ratio); err != nil {
			return core.AggregateStats{}, eris.Wrap(err, "failed to scan aggregate row")
		}
		ratios[category] = ratio
	}
	if err := rows.Err(); err != nil {
		return core.AggregateStats{}, eris.Wrap(err, "failed to read aggregate rows")
	}
	return core.AggregateStats{CategoryRatios: ratios}, nil
}

const (
	selectPolicies = `
		SELECT id, condition_json, action, rationale, threshold, priority, enabled, params_json
		FROM policies
		ORDER BY id
	`
	selectWeights = `
		SELECT feature, weight
		FROM user_weights
		WHERE user_id = ?
	`
	selectAggregates = `
		SELECT category, ratio
		FROM user_aggregates
		WHERE user_id = ?
	`
)
