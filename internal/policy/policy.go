package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/action"
	"github.com/inboxforge/triage-engine/internal/condition"
	"github.com/inboxforge/triage-engine/internal/core"
)

type compiled struct {
	policy  core.Policy
	program *condition.Program
	params  map[string]any
}

// Set is a compiled policy snapshot: enabled policies ordered by
// ascending priority (id as tie-break), plus load-stage diagnostics
// for the ones that failed to compile. A Set is immutable and shared
// by concurrent Apply calls.
type Set struct {
	revision string
	ordered  []compiled
	diags    []core.PolicyDiagnostic
}

// Compile builds a Set from one snapshot. A broken policy never
// aborts the set: it is dropped from evaluation and carried as a
// diagnostic on every apply result until it is fixed.
func Compile(snapshot core.PolicySnapshot, registry *action.Registry) *Set {
	set := &Set{revision: snapshot.Revision}

	for _, p := range snapshot.Policies {
		if !p.Enabled {
			continue
		}

		descriptor, ok := registry.Lookup(p.Action)
		if !ok {
			set.diags = append(set.diags, core.PolicyDiagnostic{
				PolicyID: p.ID,
				Stage:    core.StageLoad,
				Kind:     core.DiagUnknownAction,
				Message:  fmt.Sprintf("unknown action %q", p.Action),
			})
			continue
		}

		var cond condition.Condition
		if err := json.Unmarshal(p.Condition, &cond); err != nil {
			set.diags = append(set.diags, core.PolicyDiagnostic{
				PolicyID: p.ID,
				Stage:    core.StageLoad,
				Kind:     core.DiagBadCondition,
				Message:  err.Error(),
			})
			continue
		}

		program, err := condition.Compile(cond, p.ID)
		if err != nil {
			set.diags = append(set.diags, loadDiagnostic(p.ID, err))
			continue
		}

		set.ordered = append(set.ordered, compiled{
			policy:  p,
			program: program,
			params:  descriptor.BuildParams(p.Params),
		})
	}

	sort.SliceStable(set.ordered, func(i, j int) bool {
		pi, pj := set.ordered[i].policy, set.ordered[j].policy
		if pi.Priority != pj.Priority {
			return pi.Priority < pj.Priority
		}
		return pi.ID < pj.ID
	})
	return set
}

func loadDiagnostic(policyID string, err error) core.PolicyDiagnostic {
	kind := core.DiagBadCondition
	var cfgErr *condition.ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Reason == condition.ReasonUnsupportedOperator {
		kind = core.DiagUnsupportedOperator
	}
	return core.PolicyDiagnostic{
		PolicyID: policyID,
		Stage:    core.StageLoad,
		Kind:     kind,
		Message:  err.Error(),
	}
}

// Apply evaluates the set against one email context. Matching
// policies emit actions with a provisional confidence of
// max(threshold, 0.5); when several matched policies propose the same
// action type, the highest-precedence one wins and the others stay in
// the output marked suppressed.
func (s *Set) Apply(env core.PolicyEnv) ([]core.ProposedAction, []core.PolicyDiagnostic) {
	actions := []core.ProposedAction{}
	diags := append([]core.PolicyDiagnostic(nil), s.diags...)

	winners := make(map[string]int)
	for _, c := range s.ordered {
		matched, err := evalPolicy(c.program, env)
		if err != nil {
			diags = append(diags, core.PolicyDiagnostic{
				PolicyID: c.policy.ID,
				Stage:    core.StageEval,
				Kind:     core.DiagEvalFailure,
				Message:  err.Error(),
			})
			continue
		}
		if !matched {
			continue
		}

		proposed := core.ProposedAction{
			EmailID:    env.EmailID,
			Action:     c.policy.Action,
			PolicyID:   c.policy.ID,
			Confidence: provisionalConfidence(c.policy.Threshold),
			Rationale:  rationale(c.policy),
			Params:     maps.Clone(c.params),
		}
		if winner, ok := winners[proposed.Action]; ok {
			proposed.Suppressed = true
			proposed.SuppressedBy = actions[winner].PolicyID
		} else {
			winners[proposed.Action] = len(actions)
		}
		actions = append(actions, proposed)
	}
	return actions, diags
}

// evalPolicy is the isolation boundary around one policy: a panic in
// its evaluation becomes that policy's error, never the batch's.
func evalPolicy(program *condition.Program, env core.PolicyEnv) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = eris.Errorf("policy: evaluation panicked: %v", r)
		}
	}()
	return program.Eval(condition.Env{Context: env.Context, Now: env.Now}), nil
}

func provisionalConfidence(threshold float64) float64 {
	if threshold < 0.5 {
		return 0.5
	}
	return threshold
}

func rationale(p core.Policy) string {
	if p.Rationale != "" {
		return p.Rationale
	}
	return p.ID
}

// Engine applies policy snapshots, caching the compiled form of the
// most recent revision so condition trees parse once per revision
// rather than once per email.
type Engine struct {
	registry *action.Registry
	logger   *zap.Logger
	cache    atomic.Pointer[Set]
}

// NewEngine creates a new policy engine
func NewEngine(registry *action.Registry, logger *zap.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// Apply implements core.PolicyApplier.
func (e *Engine) Apply(snapshot core.PolicySnapshot, env core.PolicyEnv) ([]core.ProposedAction, []core.PolicyDiagnostic) {
	return e.compiledSet(snapshot).Apply(env)
}

func (e *Engine) compiledSet(snapshot core.PolicySnapshot) *Set {
	if cached := e.cache.Load(); cached != nil && snapshot.Revision != "" && cached.revision == snapshot.Revision {
		return cached
	}

	set := Compile(snapshot, e.registry)
	e.cache.Store(set)
	e.logger.Debug("Compiled policy set",
		zap.String("revision", snapshot.Revision),
		zap.Int("policies", len(set.ordered)),
		zap.Int("load_failures", len(set.diags)))
	return set
}
