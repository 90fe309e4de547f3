package classifier

import (
	"math"
	"sort"

	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/rules"
)

// Rule matches floor a category's score at this value; an existing
// higher score is never lowered.
const ruleOverrideFloor = 0.95

const maxConfidence = 0.99

// Classifier blends the probabilistic model with rule-match overrides.
// A nil model puts the classifier in rule-only degraded mode: rule
// matches still classify, the reported source is always "rule" and the
// model version is the "none" sentinel. Classification never fails.
type Classifier struct {
	model   *Model
	matcher *rules.Matcher
}

// New builds a classifier over one bundle's model and matcher. model
// may be nil.
func New(model *Model, matcher *rules.Matcher) *Classifier {
	return &Classifier{model: model, matcher: matcher}
}

// Degraded reports whether the classifier runs without a model.
func (c *Classifier) Degraded() bool {
	return c.model == nil
}

// Classify scores the email, applies rule overrides and picks the
// winner, tie-breaking by the bundle's fixed category priority.
func (c *Classifier) Classify(email *core.EmailView, matches map[string]bool) core.ClassificationResult {
	var scores map[string]float64
	modelWinner := ""
	if c.model != nil {
		scores = c.model.Scores(BuildFeatures(email))
		modelWinner = c.pickWinner(scores)
	} else {
		scores = make(map[string]float64, len(matches))
		for name := range matches {
			scores[name] = 0
		}
	}

	for name, matched := range matches {
		if matched && scores[name] < ruleOverrideFloor {
			scores[name] = ruleOverrideFloor
		}
	}

	winner := c.pickWinner(scores)

	source := core.SourceModel
	switch {
	case c.model == nil:
		source = core.SourceRule
	case matches[winner] && winner == modelWinner:
		source = core.SourceBlended
	case matches[winner]:
		source = core.SourceRule
	}

	version := core.ModelVersionNone
	if c.model != nil {
		version = c.model.Version
	}

	return core.ClassificationResult{
		Category:          winner,
		IsRealOpportunity: c.isOpportunity(winner, matches),
		Confidence:        clampConfidence(scores[winner]),
		Source:            source,
		ModelVersion:      version,
	}
}

// pickWinner takes the argmax over positive scores. Ties go to the
// category with the better priority rank, then alphabetically; with
// no positive score at all the email is "other".
func (c *Classifier) pickWinner(scores map[string]float64) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := c.matcher.Rank(names[i]), c.matcher.Rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	winner := core.CategoryOther
	best := 0.0
	for _, name := range names {
		if scores[name] > best {
			best = scores[name]
			winner = name
		}
	}
	return winner
}

// Opportunity categories map to true; everything else is noise unless
// a rule match flags an opportunity category explicitly.
func (c *Classifier) isOpportunity(winner string, matches map[string]bool) bool {
	if c.matcher.IsOpportunity(winner) {
		return true
	}
	for name, matched := range matches {
		if matched && c.matcher.IsOpportunity(name) {
			return true
		}
	}
	return false
}

func clampConfidence(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > maxConfidence {
		return maxConfidence
	}
	return x
}
