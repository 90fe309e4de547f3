package core

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMatcher struct {
	matches   map[string]bool
	extracted ExtractedFields
}

func (m stubMatcher) Match(email *EmailView) map[string]bool { return m.matches }

func (m stubMatcher) Extract(email *EmailView) ExtractedFields { return m.extracted }

type stubScorer struct {
	assessment RiskAssessment
}

func (s stubScorer) Score(senderHeader string, urls []string) RiskAssessment { return s.assessment }

type stubClassifier struct {
	result ClassificationResult
}

func (c stubClassifier) Classify(email *EmailView, matches map[string]bool) ClassificationResult {
	return c.result
}

type staticEngines struct {
	engine Engine
}

func (s staticEngines) Current() Engine { return s.engine }

type stubPolicies struct {
	snapshot PolicySnapshot
	err      error
}

func (p stubPolicies) Snapshot(ctx context.Context) (PolicySnapshot, error) {
	return p.snapshot, p.err
}

type stubWeights struct {
	weights map[string]float64
	err     error
}

func (w stubWeights) Weights(ctx context.Context, userID string) (map[string]float64, error) {
	return w.weights, w.err
}

type stubAggregates struct {
	stats AggregateStats
	err   error
}

func (a stubAggregates) Aggregates(ctx context.Context, userID string) (AggregateStats, error) {
	return a.stats, a.err
}

// stubApplier hands out fresh copies so the service may mutate what it
// gets back, and records every env it saw.
type stubApplier struct {
	actions []ProposedAction
	diags   []PolicyDiagnostic

	mu   sync.Mutex
	envs []PolicyEnv
}

func (a *stubApplier) Apply(snapshot PolicySnapshot, env PolicyEnv) ([]ProposedAction, []PolicyDiagnostic) {
	a.mu.Lock()
	a.envs = append(a.envs, env)
	a.mu.Unlock()
	return slices.Clone(a.actions), slices.Clone(a.diags)
}

// baselineEstimator echoes the baseline so threshold plumbing stays
// observable in assertions.
type baselineEstimator struct{}

func (baselineEstimator) Estimate(threshold float64, features ConfidenceFeatures, aggregates AggregateStats, weights map[string]float64) float64 {
	return threshold
}

type estimateCall struct {
	threshold  float64
	features   ConfidenceFeatures
	aggregates AggregateStats
	weights    map[string]float64
}

type captureEstimator struct {
	mu    sync.Mutex
	calls []estimateCall
}

func (e *captureEstimator) Estimate(threshold float64, features ConfidenceFeatures, aggregates AggregateStats, weights map[string]float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, estimateCall{threshold, features, aggregates, weights})
	return threshold
}

type captureSink struct {
	mu      sync.Mutex
	err     error
	records []TriageRecord
}

func (s *captureSink) Append(ctx context.Context, record TriageRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// serviceFixture wires a service from stubs. Tests override fields
// before calling service.
type serviceFixture struct {
	engines    staticEngines
	policies   stubPolicies
	weights    stubWeights
	aggregates stubAggregates
	applier    *stubApplier
	estimator  ConfidenceEstimator
	sink       *captureSink
}

func newFixture() *serviceFixture {
	return &serviceFixture{
		engines: staticEngines{engine: Engine{
			Version: "2024.06+m1",
			Matcher: stubMatcher{matches: map[string]bool{CategoryPromotions: true}},
			Risk:    stubScorer{assessment: RiskAssessment{Score: 42, Factors: []string{"suspicious_tld:zip"}}},
			Classifier: stubClassifier{result: ClassificationResult{
				Category:     CategoryPromotions,
				Confidence:   0.9,
				Source:       SourceRule,
				ModelVersion: "m1",
			}},
		}},
		policies: stubPolicies{snapshot: PolicySnapshot{
			Revision: "r1",
			Policies: []Policy{{ID: "archive-promos", Action: ActionArchive, Threshold: 0.6, Priority: 10, Enabled: true}},
		}},
		applier: &stubApplier{actions: []ProposedAction{{
			EmailID:   "e1",
			Action:    ActionArchive,
			PolicyID:  "archive-promos",
			Rationale: "archive promotions",
		}}},
		estimator: baselineEstimator{},
		sink:      &captureSink{},
	}
}

func (f *serviceFixture) service(labelThreshold float64, workers int) *TriageService {
	return NewTriageService(f.engines, f.policies, f.weights, f.aggregates, f.applier, f.estimator, f.sink, zap.NewNop(), labelThreshold, workers)
}

func testEmail(id string) *EmailView {
	return &EmailView{
		ID:            id,
		UserID:        "u1",
		Subject:       "Huge sale",
		Body:          "Everything half price",
		SenderHeader:  "Shop <deals@shop.example>",
		SenderAddress: "deals@shop.example",
		SenderDomain:  "shop.example",
	}
}

func TestTriage_FullPipeline(t *testing.T) {
	f := newFixture()
	svc := f.service(0.8, 1)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := svc.Triage(context.Background(), testEmail("e1"), now)
	require.NoError(t, err)

	require.Equal(t, "e1", result.EmailID)
	require.Equal(t, "u1", result.UserID)
	require.Equal(t, CategoryPromotions, result.Classification.Category)
	require.Equal(t, 42, result.Risk.Score)
	require.Equal(t, "2024.06+m1", result.BundleVersion)
	require.Equal(t, now, result.EvaluatedAt)
	require.NotEmpty(t, result.ProcessingID)

	// One policy action plus the classifier label (0.9 >= 0.8).
	require.Len(t, result.Actions, 2)
	archive := result.Actions[0]
	require.Equal(t, ActionArchive, archive.Action)
	// The baseline estimator echoes the policy threshold.
	require.Equal(t, 0.6, archive.Confidence)
	label := result.Actions[1]
	require.Equal(t, ActionLabel, label.Action)
	require.Equal(t, ClassifierPolicyID, label.PolicyID)
	require.Equal(t, 0.8, label.Confidence)
	require.Equal(t, "categorized as promotions", label.Rationale)
	require.Equal(t, map[string]any{"label": "promotions"}, label.Params)
	require.False(t, label.Suppressed)

	// The applier saw the shared now and the email under evaluation.
	require.Len(t, f.applier.envs, 1)
	require.Equal(t, "e1", f.applier.envs[0].EmailID)
	require.Equal(t, now, f.applier.envs[0].Now)
}

func TestTriage_AppendsAuditRecord(t *testing.T) {
	f := newFixture()
	svc := f.service(0.8, 1)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := svc.Triage(context.Background(), testEmail("e1"), now)
	require.NoError(t, err)

	require.Len(t, f.sink.records, 1)
	record := f.sink.records[0]
	require.Equal(t, result.ProcessingID, record.ProcessingID)
	require.Equal(t, "e1", record.EmailID)
	require.Equal(t, "u1", record.UserID)
	require.Equal(t, CategoryPromotions, record.Category)
	require.Equal(t, 42, record.RiskScore)
	require.Len(t, record.Actions, 2)
	require.Equal(t, now, record.CreatedAt)
}

func TestTriage_LabelSuppressedByPolicyLabel(t *testing.T) {
	f := newFixture()
	f.applier.actions = []ProposedAction{{
		EmailID:  "e1",
		Action:   ActionLabel,
		PolicyID: "label-deals",
	}}
	svc := f.service(0.8, 1)

	result, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.NoError(t, err)

	require.Len(t, result.Actions, 2)
	classifierLabel := result.Actions[1]
	require.Equal(t, ClassifierPolicyID, classifierLabel.PolicyID)
	require.True(t, classifierLabel.Suppressed)
	require.Equal(t, "label-deals", classifierLabel.SuppressedBy)
}

func TestTriage_NoLabelBelowThreshold(t *testing.T) {
	f := newFixture()
	// Classification confidence 0.9 under a 0.95 bar.
	svc := f.service(0.95, 1)

	result, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	require.Equal(t, ActionArchive, result.Actions[0].Action)
}

func TestTriage_LabelDisabledByZeroThreshold(t *testing.T) {
	f := newFixture()
	svc := f.service(0, 1)

	result, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	require.Equal(t, ActionArchive, result.Actions[0].Action)
}

func TestTriage_PolicySnapshotErrorFails(t *testing.T) {
	f := newFixture()
	f.policies = stubPolicies{err: eris.New("store down")}
	svc := f.service(0.8, 1)

	_, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.Error(t, err)
	require.ErrorContains(t, err, "load policy snapshot")
	require.Empty(t, f.sink.records)
}

func TestTriage_ProceedsWithoutWeightsAndAggregates(t *testing.T) {
	f := newFixture()
	f.weights = stubWeights{err: eris.New("weights down")}
	f.aggregates = stubAggregates{err: eris.New("aggregates down")}
	estimator := &captureEstimator{}
	f.estimator = estimator
	svc := f.service(0.8, 1)

	result, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.NoError(t, err)
	require.Len(t, result.Actions, 2)

	require.NotEmpty(t, estimator.calls)
	for _, call := range estimator.calls {
		require.Nil(t, call.weights)
		require.Nil(t, call.aggregates.CategoryRatios)
	}
}

func TestTriage_AuditFailureDoesNotFailRun(t *testing.T) {
	f := newFixture()
	f.sink.err = eris.New("audit down")
	svc := f.service(0.8, 1)

	result, err := svc.Triage(context.Background(), testEmail("e1"), time.Now())
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestTriage_DeterministicApartFromProcessingID(t *testing.T) {
	f := newFixture()
	svc := f.service(0.8, 1)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := svc.Triage(context.Background(), testEmail("e1"), now)
	require.NoError(t, err)
	second, err := svc.Triage(context.Background(), testEmail("e1"), now)
	require.NoError(t, err)

	require.NotEqual(t, first.ProcessingID, second.ProcessingID)
	second.ProcessingID = first.ProcessingID
	require.Equal(t, first, second)
}

func TestTriage_EngineExtractionFillsMissingFields(t *testing.T) {
	f := newFixture()
	callerAmount := int64(500)
	foundAmount := int64(999)
	expires := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	f.engines.engine.Matcher = stubMatcher{
		matches:   map[string]bool{CategoryPromotions: true},
		extracted: ExtractedFields{AmountCents: &foundAmount, ExpiresAt: &expires},
	}
	svc := f.service(0.8, 1)

	email := testEmail("e1")
	email.Extracted.AmountCents = &callerAmount

	_, err := svc.Triage(context.Background(), email, time.Now())
	require.NoError(t, err)

	require.Len(t, f.applier.envs, 1)
	ctx := f.applier.envs[0].Context
	// The caller-supplied amount wins; the expiry comes from engine
	// extraction.
	require.Equal(t, int64(500), ctx["amount_cents"])
	require.Equal(t, expires, ctx["expires_at"])
}

func TestTriageBatch_KeepsInputOrder(t *testing.T) {
	f := newFixture()
	svc := f.service(0.8, 2)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	emails := []*EmailView{testEmail("a"), testEmail("b"), testEmail("c"), testEmail("d")}
	results, err := svc.TriageBatch(context.Background(), emails, now)
	require.NoError(t, err)

	require.Len(t, results, 4)
	for i, email := range emails {
		require.Equal(t, email.ID, results[i].EmailID)
		require.Equal(t, now, results[i].EvaluatedAt)
	}
}

func TestTriageBatch_FailsWhenSnapshotUnavailable(t *testing.T) {
	f := newFixture()
	f.policies = stubPolicies{err: eris.New("store down")}
	svc := f.service(0.8, 2)

	_, err := svc.TriageBatch(context.Background(), []*EmailView{testEmail("a"), testEmail("b")}, time.Now())
	require.Error(t, err)
	require.ErrorContains(t, err, "triage email")
}
