package rules

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/textutil"
)

// Matcher is the compiled, immutable form of a rules Spec. One Matcher
// is shared by every concurrent evaluation of its bundle version.
type Matcher struct {
	version     string
	categories  []category
	rank        map[string]int
	opportunity map[string]bool
}

type category struct {
	name           string
	headerNeedles  []string
	domainPatterns []domainPattern
	lexicon        []string
}

type domainPattern struct {
	base     string
	wildcard bool
}

// NewMatcher compiles a Spec: needles and lexicon terms are normalized
// once, domain patterns parsed once. Categories are ordered by the
// spec's priority list; categories missing from the list rank after
// all listed ones, alphabetically.
func NewMatcher(spec *Spec) (*Matcher, error) {
	m := &Matcher{
		version:     spec.Version,
		rank:        make(map[string]int, len(spec.Priority)),
		opportunity: make(map[string]bool, len(spec.OpportunityCategories)),
	}
	for i, name := range spec.Priority {
		m.rank[name] = i
	}
	for _, name := range spec.OpportunityCategories {
		m.opportunity[name] = true
	}

	names := make([]string, 0, len(spec.Categories))
	for name := range spec.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, iKnown := m.rank[names[i]]
		rj, jKnown := m.rank[names[j]]
		if iKnown != jKnown {
			return iKnown
		}
		if iKnown && ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		cat, err := compileCategory(name, spec.Categories[name])
		if err != nil {
			return nil, err
		}
		m.categories = append(m.categories, cat)
		if _, ok := m.rank[name]; !ok {
			m.rank[name] = len(m.rank)
		}
	}
	return m, nil
}

func compileCategory(name string, spec CategorySpec) (category, error) {
	cat := category{name: name}
	for _, needle := range spec.HeaderNeedles {
		cat.headerNeedles = append(cat.headerNeedles, textutil.Normalize(needle))
	}
	for _, raw := range spec.DomainPatterns {
		pattern := domainPattern{base: strings.ToLower(raw)}
		if rest, ok := strings.CutPrefix(pattern.base, "*."); ok {
			pattern.base = rest
			pattern.wildcard = true
		}
		if pattern.base == "" {
			return category{}, eris.Errorf("rules: category %s: empty domain pattern %q", name, raw)
		}
		cat.domainPatterns = append(cat.domainPatterns, pattern)
	}
	for _, term := range spec.Lexicon {
		cat.lexicon = append(cat.lexicon, textutil.Normalize(term))
	}
	return cat, nil
}

// Version reports the rules bundle version.
func (m *Matcher) Version() string {
	return m.version
}

// Rank returns a category's tie-break position, lower winning.
// Unknown categories rank last.
func (m *Matcher) Rank(name string) int {
	if r, ok := m.rank[name]; ok {
		return r
	}
	return len(m.rank)
}

// IsOpportunity reports whether a category represents genuine
// outreach rather than digest or marketing traffic.
func (m *Matcher) IsOpportunity(name string) bool {
	return m.opportunity[name]
}

// Categories lists the known category names in priority order.
func (m *Matcher) Categories() []string {
	names := make([]string, len(m.categories))
	for i, cat := range m.categories {
		names[i] = cat.name
	}
	return names
}

// Match tests every category against the email. A category matches if
// any of its layers passes: header needle containment, sender-domain
// pattern, or lexicon containment over subject and body.
func (m *Matcher) Match(email *core.EmailView) map[string]bool {
	headerValues := normalizedHeaderValues(email.Headers)
	domain := strings.ToLower(email.SenderDomain)
	text := textutil.Normalize(email.Subject + " " + email.Body)

	matches := make(map[string]bool, len(m.categories))
	for _, cat := range m.categories {
		matches[cat.name] = cat.matches(headerValues, domain, text)
	}
	return matches
}

func (c *category) matches(headerValues []string, domain, text string) bool {
	for _, needle := range c.headerNeedles {
		for _, value := range headerValues {
			if strings.Contains(value, needle) {
				return true
			}
		}
	}
	for _, pattern := range c.domainPatterns {
		if pattern.matches(domain) {
			return true
		}
	}
	for _, term := range c.lexicon {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// An exact pattern matches the domain itself or any subdomain; a
// "*.base" pattern matches subdomains only.
func (p domainPattern) matches(domain string) bool {
	if domain == "" {
		return false
	}
	if p.wildcard {
		return strings.HasSuffix(domain, "."+p.base)
	}
	return domain == p.base || strings.HasSuffix(domain, "."+p.base)
}

func normalizedHeaderValues(headers map[string][]string) []string {
	var values []string
	for name, headerValues := range headers {
		for _, value := range headerValues {
			values = append(values, textutil.Normalize(name+": "+value))
		}
	}
	return values
}
