package confidence

import (
	"sort"
	"strings"

	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/textutil"
)

const (
	aggregateRatioThreshold = 0.6
	aggregateBump           = 0.1
	weightScale             = 0.05
	weightBumpLimit         = 0.15
	highRiskThreshold       = 80
	highRiskConfidence      = 0.95
	maxConfidence           = 0.99
)

// Estimator blends a policy's baseline confidence with the user's
// aggregate statistics and learned feature weights. It is stateless;
// every input arrives as a per-call snapshot.
type Estimator struct{}

// NewEstimator creates a new confidence estimator
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate computes the final confidence for one proposed action. A
// high risk score overrides every other signal with a flat 0.95; with
// no aggregate signal and no applicable weights the result is the
// baseline threshold exactly. The result is always within [0, 0.99].
func (e *Estimator) Estimate(threshold float64, features core.ConfidenceFeatures, aggregates core.AggregateStats, weights map[string]float64) float64 {
	if features.RiskScore >= highRiskThreshold {
		return highRiskConfidence
	}

	confidence := threshold
	if aggregates.CategoryRatio(features.Category) > aggregateRatioThreshold {
		confidence += aggregateBump
	}
	confidence += weightBump(features, weights)

	if confidence < 0 {
		return 0
	}
	if confidence > maxConfidence {
		return maxConfidence
	}
	return confidence
}

// weightBump sums the applicable weights in sorted key order so float
// accumulation never depends on map iteration, then scales and clamps
// the bump to [-0.15, +0.15].
func weightBump(features core.ConfidenceFeatures, weights map[string]float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sum := 0.0
	applied := false
	for _, key := range keys {
		if applies(key, features) {
			sum += weights[key]
			applied = true
		}
	}
	if !applied {
		return 0
	}

	bump := weightScale * sum
	if bump > weightBumpLimit {
		return weightBumpLimit
	}
	if bump < -weightBumpLimit {
		return -weightBumpLimit
	}
	return bump
}

// applies matches one learned feature key against the email evidence:
// "category:<cat>" keys match the assigned category, "contains:<text>"
// keys match the normalized subject+body text. Unknown key shapes
// contribute nothing.
func applies(key string, features core.ConfidenceFeatures) bool {
	if category, ok := strings.CutPrefix(key, "category:"); ok {
		return category == features.Category
	}
	if needle, ok := strings.CutPrefix(key, "contains:"); ok {
		return strings.Contains(features.Text, textutil.Normalize(needle))
	}
	return false
}
