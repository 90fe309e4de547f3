package core

import (
	"encoding/json"
	"time"
)

// Category labels assigned by the engine. Rule bundles may define
// additional categories; these are the ones the stock bundle ships.
const (
	CategoryPromotions = "promotions"
	CategoryBills      = "bills"
	CategoryBanks      = "banks"
	CategoryATS        = "ats"
	CategoryEvents     = "events"
	CategoryOther      = "other"
)

// ClassificationSource tells which evidence produced the winning
// category.
type ClassificationSource string

const (
	SourceRule    ClassificationSource = "rule"
	SourceModel   ClassificationSource = "model"
	SourceBlended ClassificationSource = "blended"
)

// ModelVersionNone is the sentinel version reported when the engine
// runs without a model artifact.
const ModelVersionNone = "none"

// ClassifierPolicyID marks proposed actions that originate from the
// classifier rather than from a policy.
const ClassifierPolicyID = "classifier"

// Action types the engine can propose. The set is fixed at startup;
// policies naming anything else fail at load.
const (
	ActionArchive     = "archive"
	ActionQuarantine  = "quarantine"
	ActionUnsubscribe = "unsubscribe"
	ActionLabel       = "label"
)

// ExtractedFields holds structured values pulled out of an email.
// Unset pointers mean extraction found nothing; extraction never
// fails an email.
type ExtractedFields struct {
	AmountCents  *int64
	ExpiresAt    *time.Time
	EventStartAt *time.Time
}

// EmailView is the engine's input: one normalized email record as the
// ingestion pipeline produced it. The engine treats it as immutable.
type EmailView struct {
	ID            string
	UserID        string
	Subject       string
	Body          string
	SenderHeader  string
	SenderAddress string
	SenderDomain  string
	To            []string
	Headers       map[string][]string
	URLs          []string
	Extracted     ExtractedFields
}

// ClassificationResult is the engine's category verdict for one email.
// Confidence is clamped to [0, 0.99] and never NaN or infinite.
type ClassificationResult struct {
	Category          string
	IsRealOpportunity bool
	Confidence        float64
	Source            ClassificationSource
	ModelVersion      string
}

// RiskAssessment is the spoofing/phishing verdict. Score is additive
// over independent signals, then clamped to [0, 100]. Factors lists
// the signals that fired, in their fixed evaluation order.
type RiskAssessment struct {
	Score   int
	Factors []string
}

// Policy is one declarative triage rule as the policy store delivers
// it. Condition holds the raw condition-tree JSON; it is compiled once
// per snapshot, not per evaluation.
type Policy struct {
	ID        string
	Condition json.RawMessage
	Action    string
	Rationale string
	Threshold float64
	Priority  int
	Enabled   bool
	Params    map[string]any
}

// PolicySnapshot is the policy set read at the start of one apply
// batch. Revision changes whenever the stored set changes, so compiled
// condition programs can be reused across batches.
type PolicySnapshot struct {
	Revision string
	Policies []Policy
}

// ProposedAction is one automated action the engine suggests for an
// email. Suppressed actions lost conflict resolution but stay in the
// output for auditability.
type ProposedAction struct {
	EmailID      string
	Action       string
	PolicyID     string
	Confidence   float64
	Rationale    string
	Params       map[string]any
	Suppressed   bool
	SuppressedBy string
}

// PolicyDiagnostic reports a policy that could not be loaded or
// evaluated. Diagnostics never abort the batch that produced them.
type PolicyDiagnostic struct {
	PolicyID string
	Stage    string
	Kind     string
	Message  string
}

// Diagnostic stages and kinds.
const (
	StageLoad = "load"
	StageEval = "eval"

	DiagUnsupportedOperator = "unsupported_operator"
	DiagBadCondition        = "bad_condition"
	DiagUnknownAction       = "unknown_action"
	DiagEvalFailure         = "eval_failure"
)

// AggregateStats is a read-only snapshot of one user's rolling mail
// mix, produced by the feedback-aggregation job.
type AggregateStats struct {
	CategoryRatios map[string]float64
}

// CategoryRatio returns the rolling fraction of the user's recent mail
// in the given category, or 0 when unknown.
func (a AggregateStats) CategoryRatio(category string) float64 {
	if a.CategoryRatios == nil {
		return 0
	}
	return a.CategoryRatios[category]
}

// ConfidenceFeatures is the per-email evidence the confidence
// estimator matches user weights against.
type ConfidenceFeatures struct {
	Category  string
	RiskScore int
	Text      string
}

// TriageResult is the full output of one engine run for one email.
type TriageResult struct {
	EmailID        string
	UserID         string
	Classification ClassificationResult
	Risk           RiskAssessment
	Actions        []ProposedAction
	Diagnostics    []PolicyDiagnostic
	BundleVersion  string
	EvaluatedAt    time.Time
	ProcessingID   string
}

// TriageRecord is the audit-log row written after each run.
type TriageRecord struct {
	ProcessingID string
	EmailID      string
	UserID       string
	Category     string
	RiskScore    int
	Actions      []ProposedAction
	CreatedAt    time.Time
}
