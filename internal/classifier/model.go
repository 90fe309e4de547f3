package classifier

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// Model is the inference-time category model artifact, trained by the
// offline pipeline and shipped as model.json next to the rules bundle.
// Weights are log-linear: per-category priors plus per-token and
// per-numeric-feature contributions, softmax-normalized into scores.
type Model struct {
	Version        string                        `json:"version"`
	Categories     []string                      `json:"categories"`
	Priors         map[string]float64            `json:"priors"`
	TokenWeights   map[string]map[string]float64 `json:"token_weights"`
	NumericWeights map[string]map[string]float64 `json:"numeric_weights"`
}

// ParseModel decodes and sanity-checks a model artifact.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "classifier: decode model")
	}
	if m.Version == "" {
		return nil, eris.New("classifier: model has no version")
	}
	if len(m.Categories) == 0 {
		return nil, eris.New("classifier: model has no categories")
	}
	return &m, nil
}

// Scores runs the model over one feature view, returning a score per
// category in (0, 1). Tokens must be deduplicated and sorted so float
// summation order is fixed.
func (m *Model) Scores(feats Features) map[string]float64 {
	logits := make([]float64, len(m.Categories))
	for i, cat := range m.Categories {
		z := m.Priors[cat]
		for _, token := range feats.Tokens {
			if weights, ok := m.TokenWeights[token]; ok {
				z += weights[cat]
			}
		}
		z += float64(feats.URLCount) * m.NumericWeights[featURLCount][cat]
		if feats.HasCurrency {
			z += m.NumericWeights[featHasCurrency][cat]
		}
		if feats.HasUnsubscribe {
			z += m.NumericWeights[featHasUnsubscribe][cat]
		}
		logits[i] = z
	}

	maxZ := logits[0]
	for _, z := range logits[1:] {
		if z > maxZ {
			maxZ = z
		}
	}
	sum := 0.0
	exps := make([]float64, len(logits))
	for i, z := range logits {
		exps[i] = math.Exp(z - maxZ)
		sum += exps[i]
	}

	scores := make(map[string]float64, len(m.Categories))
	for i, cat := range m.Categories {
		scores[cat] = exps[i] / sum
	}
	return scores
}
