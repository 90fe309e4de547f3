package core

import (
	"context"
	"time"
)

// RuleMatcher is the deterministic pattern side of the engine: category
// matching plus structured field extraction.
type RuleMatcher interface {
	Match(email *EmailView) map[string]bool
	Extract(email *EmailView) ExtractedFields
}

// RiskScorer computes the spoofing/phishing assessment from the raw
// sender header and extracted URLs. Implementations must be pure.
type RiskScorer interface {
	Score(senderHeader string, urls []string) RiskAssessment
}

// EmailClassifier blends model scores with rule-match overrides into
// the final category verdict.
type EmailClassifier interface {
	Classify(email *EmailView, matches map[string]bool) ClassificationResult
}

// Engine is one immutable evaluation snapshot: the compiled rule set,
// scorer and classifier that belong to a single bundle version.
type Engine struct {
	Version    string
	Matcher    RuleMatcher
	Risk       RiskScorer
	Classifier EmailClassifier
}

// EngineSource publishes the current engine snapshot. Reload swaps the
// whole snapshot atomically; callers hold one snapshot for the length
// of a call and never observe partial updates.
type EngineSource interface {
	Current() Engine
}

// PolicyEnv carries the per-call inputs of one policy batch.
type PolicyEnv struct {
	EmailID string
	Context map[string]any
	Now     time.Time
}

// PolicyApplier evaluates a policy snapshot against one email context.
// Per-policy failures come back as diagnostics, never as an error.
type PolicyApplier interface {
	Apply(snapshot PolicySnapshot, env PolicyEnv) ([]ProposedAction, []PolicyDiagnostic)
}

// ConfidenceEstimator refines a proposed action's confidence from the
// policy baseline, the user's aggregates and learned weights.
type ConfidenceEstimator interface {
	Estimate(threshold float64, features ConfidenceFeatures, aggregates AggregateStats, weights map[string]float64) float64
}

// PolicySource delivers the active policy set.
type PolicySource interface {
	Snapshot(ctx context.Context) (PolicySnapshot, error)
}

// WeightSource delivers one user's learned feature weights. The engine
// consumes them strictly read-only.
type WeightSource interface {
	Weights(ctx context.Context, userID string) (map[string]float64, error)
}

// AggregateSource delivers one user's rolling category statistics.
type AggregateSource interface {
	Aggregates(ctx context.Context, userID string) (AggregateStats, error)
}

// AuditSink records finished triage runs.
type AuditSink interface {
	Append(ctx context.Context, record TriageRecord) error
}
