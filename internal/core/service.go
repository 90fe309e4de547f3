package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inboxforge/triage-engine/internal/textutil"
)

// TriageService is the core decision pipeline: rule matching and risk
// scoring, classification, policy application, confidence estimation,
// audit. One Triage call is synchronous and performs no I/O besides
// the snapshot reads and the final audit append.
type TriageService struct {
	engines        EngineSource
	policies       PolicySource
	weights        WeightSource
	aggregates     AggregateSource
	applier        PolicyApplier
	estimator      ConfidenceEstimator
	audit          AuditSink
	logger         *zap.Logger
	labelThreshold float64
	batchWorkers   int
}

// NewTriageService creates a new triage service
func NewTriageService(
	engines EngineSource,
	policies PolicySource,
	weights WeightSource,
	aggregates AggregateSource,
	applier PolicyApplier,
	estimator ConfidenceEstimator,
	audit AuditSink,
	logger *zap.Logger,
	labelThreshold float64,
	batchWorkers int,
) *TriageService {
	if batchWorkers <= 0 {
		batchWorkers = 4
	}
	return &TriageService{
		engines:        engines,
		policies:       policies,
		weights:        weights,
		aggregates:     aggregates,
		applier:        applier,
		estimator:      estimator,
		audit:          audit,
		logger:         logger,
		labelThreshold: labelThreshold,
		batchWorkers:   batchWorkers,
	}
}

// Triage runs the full pipeline for one email against the engine
// snapshot current at call time. The caller supplies now so runs are
// replayable; identical inputs produce identical results.
func (s *TriageService) Triage(ctx context.Context, email *EmailView, now time.Time) (*TriageResult, error) {
	engine := s.engines.Current()

	matches := engine.Matcher.Match(email)
	extracted := mergeExtracted(email.Extracted, engine.Matcher.Extract(email))
	risk := engine.Risk.Score(email.SenderHeader, email.URLs)
	classification := engine.Classifier.Classify(email, matches)

	snapshot, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "core: load policy snapshot")
	}

	userWeights, err := s.weights.Weights(ctx, email.UserID)
	if err != nil {
		s.logger.Warn("Proceeding without user weights",
			zap.String("user_id", email.UserID),
			zap.Error(err))
		userWeights = nil
	}
	aggregates, err := s.aggregates.Aggregates(ctx, email.UserID)
	if err != nil {
		s.logger.Warn("Proceeding without aggregate stats",
			zap.String("user_id", email.UserID),
			zap.Error(err))
		aggregates = AggregateStats{}
	}

	env := PolicyEnv{
		EmailID: email.ID,
		Context: BuildContext(email, classification, risk, extracted),
		Now:     now,
	}
	actions, diagnostics := s.applier.Apply(snapshot, env)

	if label, ok := s.labelAction(email, classification, actions); ok {
		actions = append(actions, label)
	}

	features := ConfidenceFeatures{
		Category:  classification.Category,
		RiskScore: risk.Score,
		Text:      textutil.Normalize(email.Subject + " " + email.Body),
	}
	thresholds := thresholdIndex(snapshot.Policies)
	for i := range actions {
		baseline := s.labelThreshold
		if actions[i].PolicyID != ClassifierPolicyID {
			baseline = thresholds[actions[i].PolicyID]
		}
		actions[i].Confidence = s.estimator.Estimate(baseline, features, aggregates, userWeights)
	}

	result := &TriageResult{
		EmailID:        email.ID,
		UserID:         email.UserID,
		Classification: classification,
		Risk:           risk,
		Actions:        actions,
		Diagnostics:    diagnostics,
		BundleVersion:  engine.Version,
		EvaluatedAt:    now,
		ProcessingID:   uuid.NewString(),
	}

	if err := s.audit.Append(ctx, newTriageRecord(result)); err != nil {
		s.logger.Warn("Failed to append audit record",
			zap.String("email_id", email.ID),
			zap.Error(err))
	}

	return result, nil
}

// TriageBatch evaluates many emails concurrently against one shared
// now. Results keep input order; the first hard failure cancels the
// batch.
func (s *TriageService) TriageBatch(ctx context.Context, emails []*EmailView, now time.Time) ([]*TriageResult, error) {
	results := make([]*TriageResult, len(emails))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)
	for i, email := range emails {
		g.Go(func() error {
			result, err := s.Triage(ctx, email, now)
			if err != nil {
				return eris.Wrapf(err, "core: triage email %s", email.ID)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// labelAction turns a confident classification into a label proposal.
// A policy-sourced label action outranks it, in which case the
// classifier's proposal is kept but suppressed.
func (s *TriageService) labelAction(email *EmailView, classification ClassificationResult, actions []ProposedAction) (ProposedAction, bool) {
	if s.labelThreshold <= 0 || classification.Confidence < s.labelThreshold {
		return ProposedAction{}, false
	}

	label := ProposedAction{
		EmailID:   email.ID,
		Action:    ActionLabel,
		PolicyID:  ClassifierPolicyID,
		Rationale: "categorized as " + classification.Category,
		Params:    map[string]any{"label": classification.Category},
	}
	for _, a := range actions {
		if a.Action == ActionLabel && !a.Suppressed {
			label.Suppressed = true
			label.SuppressedBy = a.PolicyID
			break
		}
	}
	return label, true
}

// mergeExtracted keeps caller-supplied fields and fills the rest from
// the engine's own extraction.
func mergeExtracted(have, found ExtractedFields) ExtractedFields {
	if have.AmountCents == nil {
		have.AmountCents = found.AmountCents
	}
	if have.ExpiresAt == nil {
		have.ExpiresAt = found.ExpiresAt
	}
	if have.EventStartAt == nil {
		have.EventStartAt = found.EventStartAt
	}
	return have
}

func thresholdIndex(policies []Policy) map[string]float64 {
	idx := make(map[string]float64, len(policies))
	for _, p := range policies {
		idx[p.ID] = p.Threshold
	}
	return idx
}

func newTriageRecord(result *TriageResult) TriageRecord {
	return TriageRecord{
		ProcessingID: result.ProcessingID,
		EmailID:      result.EmailID,
		UserID:       result.UserID,
		Category:     result.Classification.Category,
		RiskScore:    result.Risk.Score,
		Actions:      result.Actions,
		CreatedAt:    result.EvaluatedAt,
	}
}
