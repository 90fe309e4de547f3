package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/inboxforge/triage-engine/internal/classifier"
	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/risk"
	"github.com/inboxforge/triage-engine/internal/rules"
)

// Bundle file names inside a bundle directory.
const (
	RulesFile = "rules.yaml"
	ModelFile = "model.json"
)

// Bundle is one immutable evaluation snapshot built from a bundle
// directory: the compiled rule matcher, the risk scorer and the
// classifier, all belonging to a single published version.
type Bundle struct {
	Version    string
	Matcher    *rules.Matcher
	Scorer     *risk.Scorer
	Model      *classifier.Model
	Classifier *classifier.Classifier

	engine core.Engine
}

// Engine returns the snapshot in the shape the triage service consumes.
func (b *Bundle) Engine() core.Engine {
	return b.engine
}

// Degraded reports whether the bundle runs without a model artifact.
func (b *Bundle) Degraded() bool {
	return b.Model == nil
}

// Load reads a bundle directory. rules.yaml is required; model.json is
// optional, and a bundle without one classifies from rule matches
// alone.
func Load(dir string) (*Bundle, error) {
	rulesData, err := os.ReadFile(filepath.Join(dir, RulesFile))
	if err != nil {
		return nil, eris.Wrapf(err, "bundle: read %s", RulesFile)
	}
	spec, err := rules.ParseSpec(rulesData)
	if err != nil {
		return nil, err
	}
	matcher, err := rules.NewMatcher(spec)
	if err != nil {
		return nil, err
	}

	var model *classifier.Model
	modelData, err := os.ReadFile(filepath.Join(dir, ModelFile))
	switch {
	case err == nil:
		if model, err = classifier.ParseModel(modelData); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		// degraded run
	default:
		return nil, eris.Wrapf(err, "bundle: read %s", ModelFile)
	}

	b := &Bundle{
		Version:    version(matcher.Version(), model),
		Matcher:    matcher,
		Scorer:     risk.NewScorer(spec.Brands, spec.SuspiciousTLDs),
		Model:      model,
		Classifier: classifier.New(model, matcher),
	}
	b.engine = core.Engine{
		Version:    b.Version,
		Matcher:    b.Matcher,
		Risk:       b.Scorer,
		Classifier: b.Classifier,
	}
	return b, nil
}

// version pairs the rule bundle version with the model version, using
// the same sentinel the classifier reports when no model is loaded.
func version(rulesVersion string, model *classifier.Model) string {
	if rulesVersion == "" {
		rulesVersion = "unversioned"
	}
	modelVersion := core.ModelVersionNone
	if model != nil {
		modelVersion = model.Version
	}
	return rulesVersion + "+" + modelVersion
}

// Handle publishes the active bundle to concurrent readers and swaps
// it atomically on reload. Callers hold one snapshot for the length of
// a call and never observe a partially loaded bundle. Handle
// implements core.EngineSource.
type Handle struct {
	current atomic.Pointer[Bundle]
}

// NewHandle creates a handle serving the given bundle.
func NewHandle(b *Bundle) *Handle {
	h := &Handle{}
	h.current.Store(b)
	return h
}

// Current implements core.EngineSource.
func (h *Handle) Current() core.Engine {
	return h.current.Load().Engine()
}

// Bundle returns the active bundle.
func (h *Handle) Bundle() *Bundle {
	return h.current.Load()
}

// Swap replaces the active bundle.
func (h *Handle) Swap(b *Bundle) {
	h.current.Store(b)
}

// Reload loads the bundle directory and swaps the result into the
// handle. The active bundle stays in place when loading fails.
func Reload(dir string, handle *Handle) (*Bundle, error) {
	b, err := Load(dir)
	if err != nil {
		return nil, err
	}
	handle.Swap(b)
	return b, nil
}
