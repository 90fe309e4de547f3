package rules

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Spec is the YAML shape of a rules bundle. The bundle is authored by
// the triage team and versioned alongside the model artifact.
type Spec struct {
	Version               string                  `yaml:"version"`
	Priority              []string                `yaml:"priority"`
	OpportunityCategories []string                `yaml:"opportunity_categories"`
	Categories            map[string]CategorySpec `yaml:"categories"`
	Brands                []BrandSpec             `yaml:"brands"`
	SuspiciousTLDs        []string                `yaml:"suspicious_tlds"`
}

// CategorySpec configures the three match layers of one category.
type CategorySpec struct {
	HeaderNeedles  []string `yaml:"header_needles"`
	DomainPatterns []string `yaml:"domain_patterns"`
	Lexicon        []string `yaml:"lexicon"`
}

// BrandSpec names a brand the risk scorer protects: display-name
// tokens that suggest the brand, and the domains legitimately allowed
// to use them.
type BrandSpec struct {
	Name    string   `yaml:"name"`
	Tokens  []string `yaml:"tokens"`
	Domains []string `yaml:"domains"`
}

// ParseSpec decodes and sanity-checks a rules bundle.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrap(err, "rules: decode spec")
	}
	if len(spec.Priority) == 0 {
		return nil, eris.New("rules: spec has no category priority")
	}
	if len(spec.Categories) == 0 {
		return nil, eris.New("rules: spec has no categories")
	}
	return &spec, nil
}
