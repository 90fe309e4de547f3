package policy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/action"
	"github.com/inboxforge/triage-engine/internal/core"
)

func newTestEngine() *Engine {
	return NewEngine(action.NewRegistry(), zap.NewNop())
}

func expiredPromoEnv(now time.Time) core.PolicyEnv {
	return core.PolicyEnv{
		EmailID: "email-1",
		Context: map[string]any{
			"category":   "promotions",
			"risk_score": 5,
			"expires_at": now.Add(-48 * time.Hour),
		},
		Now: now,
	}
}

func archiveExpiredPolicy() core.Policy {
	return core.Policy{
		ID: "archive-expired-promos",
		Condition: json.RawMessage(`{"all": [
			{"field": "category", "op": "=", "value": "promotions"},
			{"field": "expires_at", "op": "<", "value": "now"}
		]}`),
		Action:    "archive",
		Rationale: "expired promotional offer",
		Threshold: 0.7,
		Priority:  10,
		Enabled:   true,
	}
}

func promoPolicy(id, actionType string, priority int, threshold float64) core.Policy {
	return core.Policy{
		ID:        id,
		Condition: json.RawMessage(`{"field": "category", "op": "=", "value": "promotions"}`),
		Action:    actionType,
		Threshold: threshold,
		Priority:  priority,
		Enabled:   true,
	}
}

func TestApplyExpiredPromotionProposesSingleArchive(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{archiveExpiredPolicy()}}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(now))

	require.Empty(t, diags)
	require.Len(t, actions, 1)
	act := actions[0]
	require.Equal(t, "email-1", act.EmailID)
	require.Equal(t, core.ActionArchive, act.Action)
	require.Equal(t, "archive-expired-promos", act.PolicyID)
	require.Equal(t, 0.7, act.Confidence)
	require.GreaterOrEqual(t, act.Confidence, 0.5)
	require.Equal(t, "expired promotional offer", act.Rationale)
	require.False(t, act.Suppressed)
}

func TestApplyNonMatchingPolicyProposesNothing(t *testing.T) {
	engine := newTestEngine()
	billsOnly := archiveExpiredPolicy()
	billsOnly.Condition = json.RawMessage(`{"field": "category", "op": "=", "value": "bills"}`)
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{billsOnly}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, actions)
	require.Empty(t, diags)
}

func TestApplyConfidenceIsThresholdFlooredAtHalf(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		promoPolicy("loose", "archive", 10, 0.2),
		promoPolicy("strict", "label", 20, 0.8),
	}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, diags)
	require.Len(t, actions, 2)
	// max(0.2, 0.5) = 0.5, max(0.8, 0.5) = 0.8
	require.Equal(t, 0.5, actions[0].Confidence)
	require.Equal(t, 0.8, actions[1].Confidence)
}

func TestApplySameActionConflictKeepsLowestPriorityNumber(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		promoPolicy("second", "archive", 20, 0.6),
		promoPolicy("first", "archive", 10, 0.6),
	}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, diags)
	require.Len(t, actions, 2)
	require.Equal(t, "first", actions[0].PolicyID)
	require.False(t, actions[0].Suppressed)
	require.Equal(t, "second", actions[1].PolicyID)
	require.True(t, actions[1].Suppressed)
	require.Equal(t, "first", actions[1].SuppressedBy)
}

func TestApplyOrdersActionsByAscendingPriority(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		promoPolicy("late", "label", 30, 0.6),
		promoPolicy("early", "archive", 10, 0.6),
		promoPolicy("middle", "quarantine", 20, 0.6),
	}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, diags)
	require.Len(t, actions, 3)
	require.Equal(t, "early", actions[0].PolicyID)
	require.Equal(t, "middle", actions[1].PolicyID)
	require.Equal(t, "late", actions[2].PolicyID)
}

func TestApplyDisabledPolicyIgnored(t *testing.T) {
	engine := newTestEngine()
	disabled := archiveExpiredPolicy()
	disabled.Enabled = false
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{disabled}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, actions)
	require.Empty(t, diags)
}

func TestApplyUnknownActionReported(t *testing.T) {
	engine := newTestEngine()
	bad := promoPolicy("shredder", "shred", 10, 0.6)
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{bad}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, actions)
	require.Len(t, diags, 1)
	require.Equal(t, "shredder", diags[0].PolicyID)
	require.Equal(t, core.StageLoad, diags[0].Stage)
	require.Equal(t, core.DiagUnknownAction, diags[0].Kind)
	require.Contains(t, diags[0].Message, "shred")
}

func TestApplyUnsupportedOperatorIsolatedFromGoodPolicies(t *testing.T) {
	engine := newTestEngine()
	bad := core.Policy{
		ID:        "fuzzy",
		Condition: json.RawMessage(`{"field": "category", "op": "~=", "value": "promo"}`),
		Action:    "archive",
		Priority:  5,
		Enabled:   true,
	}
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		bad,
		promoPolicy("good", "label", 10, 0.6),
	}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Len(t, actions, 1)
	require.Equal(t, "good", actions[0].PolicyID)
	require.Len(t, diags, 1)
	require.Equal(t, "fuzzy", diags[0].PolicyID)
	require.Equal(t, core.StageLoad, diags[0].Stage)
	require.Equal(t, core.DiagUnsupportedOperator, diags[0].Kind)
	require.Contains(t, diags[0].Message, "~=")
}

func TestApplyMalformedConditionReported(t *testing.T) {
	engine := newTestEngine()
	bad := core.Policy{
		ID:        "half-clause",
		Condition: json.RawMessage(`{"field": "category"}`),
		Action:    "archive",
		Priority:  5,
		Enabled:   true,
	}
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{bad}}

	actions, diags := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Empty(t, actions)
	require.Len(t, diags, 1)
	require.Equal(t, "half-clause", diags[0].PolicyID)
	require.Equal(t, core.StageLoad, diags[0].Stage)
	require.Equal(t, core.DiagBadCondition, diags[0].Kind)
}

func TestApplyMergesActionDefaultsWithPolicyParams(t *testing.T) {
	engine := newTestEngine()
	quarantine := promoPolicy("careful", "quarantine", 10, 0.6)
	quarantine.Params = map[string]any{"note": "manual review"}
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{quarantine}}

	actions, _ := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Len(t, actions, 1)
	require.Equal(t, true, actions[0].Params["notify"])
	require.Equal(t, "manual review", actions[0].Params["note"])
}

func TestApplyClonesParamsBetweenRuns(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		promoPolicy("careful", "quarantine", 10, 0.6),
	}}
	env := expiredPromoEnv(time.Now())

	first, _ := engine.Apply(snapshot, env)
	require.Len(t, first, 1)
	first[0].Params["notify"] = false

	second, _ := engine.Apply(snapshot, env)
	require.Len(t, second, 1)
	require.Equal(t, true, second[0].Params["notify"])
}

func TestApplyRationaleFallsBackToPolicyID(t *testing.T) {
	engine := newTestEngine()
	snapshot := core.PolicySnapshot{Revision: "r1", Policies: []core.Policy{
		promoPolicy("bare-policy", "archive", 10, 0.6),
	}}

	actions, _ := engine.Apply(snapshot, expiredPromoEnv(time.Now()))

	require.Len(t, actions, 1)
	require.Equal(t, "bare-policy", actions[0].Rationale)
}

func TestEngineReusesCompiledSetForSameRevision(t *testing.T) {
	engine := newTestEngine()
	env := expiredPromoEnv(time.Now())

	first, _ := engine.Apply(core.PolicySnapshot{
		Revision: "r1",
		Policies: []core.Policy{promoPolicy("a", "archive", 10, 0.6)},
	}, env)
	require.Len(t, first, 1)
	require.Equal(t, core.ActionArchive, first[0].Action)

	// Same revision serves the cached compiled set even if the
	// snapshot content disagrees; content changes must bump the
	// revision.
	stale, _ := engine.Apply(core.PolicySnapshot{
		Revision: "r1",
		Policies: []core.Policy{promoPolicy("b", "label", 10, 0.6)},
	}, env)
	require.Len(t, stale, 1)
	require.Equal(t, core.ActionArchive, stale[0].Action)

	fresh, _ := engine.Apply(core.PolicySnapshot{
		Revision: "r2",
		Policies: []core.Policy{promoPolicy("b", "label", 10, 0.6)},
	}, env)
	require.Len(t, fresh, 1)
	require.Equal(t, core.ActionLabel, fresh[0].Action)
}

func TestEngineRecompilesWhenRevisionEmpty(t *testing.T) {
	engine := newTestEngine()
	env := expiredPromoEnv(time.Now())

	first, _ := engine.Apply(core.PolicySnapshot{
		Policies: []core.Policy{promoPolicy("a", "archive", 10, 0.6)},
	}, env)
	require.Len(t, first, 1)
	require.Equal(t, core.ActionArchive, first[0].Action)

	second, _ := engine.Apply(core.PolicySnapshot{
		Policies: []core.Policy{promoPolicy("b", "label", 10, 0.6)},
	}, env)
	require.Len(t, second, 1)
	require.Equal(t, core.ActionLabel, second[0].Action)
}
