package risk

import (
	"math"
	"strings"

	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/rules"
	"github.com/inboxforge/triage-engine/internal/textutil"
)

// Signal weights. The TLD signal carries a scaled weight rather than a
// flat add.
const (
	brandSpoofWeight    = 60.0
	punycodeWeight      = 30.0
	suspiciousTLDWeight = 30.0
	suspiciousTLDScale  = 0.3
	punycodeURLWeight   = 10.0
)

// Factor names, listed in their fixed emission order.
const (
	FactorBrandSpoof     = "brand_spoof"
	FactorPunycodeDomain = "punycode_domain"
	FactorSuspiciousTLD  = "suspicious_tld"
	FactorPunycodeURL    = "punycode_url"
)

type brand struct {
	name    string
	tokens  []string
	domains []string
}

// Scorer holds the compiled brand table and suspicious-TLD set of one
// bundle. Scoring is a pure function of its arguments: signals are
// additive and order-independent, summed then rounded and clamped to
// [0, 100].
type Scorer struct {
	brands         []brand
	suspiciousTLDs map[string]bool
}

// NewScorer compiles the brand specs and TLD list from a rules bundle.
func NewScorer(brands []rules.BrandSpec, suspiciousTLDs []string) *Scorer {
	s := &Scorer{suspiciousTLDs: make(map[string]bool, len(suspiciousTLDs))}
	for _, tld := range suspiciousTLDs {
		s.suspiciousTLDs[strings.ToLower(strings.TrimPrefix(tld, "."))] = true
	}
	for _, spec := range brands {
		b := brand{name: spec.Name}
		for _, token := range spec.Tokens {
			b.tokens = append(b.tokens, textutil.Normalize(token))
		}
		for _, domain := range spec.Domains {
			b.domains = append(b.domains, strings.ToLower(domain))
		}
		s.brands = append(s.brands, b)
	}
	return s
}

// Score assesses one sender header and URL list. Malformed input never
// fails: an unparsable sender yields domain "" and contributes
// nothing.
func (s *Scorer) Score(senderHeader string, urls []string) core.RiskAssessment {
	display, _, domain := core.ParseSenderHeader(senderHeader)

	sum := 0.0
	factors := []string{}

	if s.spoofedBrand(display, domain) != "" {
		sum += brandSpoofWeight
		factors = append(factors, FactorBrandSpoof)
	}
	if hasPunycodeLabel(domain) {
		sum += punycodeWeight
		factors = append(factors, FactorPunycodeDomain)
	}
	if s.suspiciousTLDs[lastLabel(domain)] {
		sum += suspiciousTLDWeight * suspiciousTLDScale
		factors = append(factors, FactorSuspiciousTLD)
	}
	if n := countPunycodeURLs(urls); n > 0 {
		sum += punycodeURLWeight * float64(n)
		factors = append(factors, FactorPunycodeURL)
	}

	score := int(math.Round(sum))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return core.RiskAssessment{Score: score, Factors: factors}
}

// spoofedBrand reports the first brand whose token appears in the
// display name while the sender domain is outside the brand's
// legitimate set. An empty domain never counts as a spoof.
func (s *Scorer) spoofedBrand(display, domain string) string {
	if domain == "" {
		return ""
	}
	normalized := textutil.Normalize(display)
	for _, b := range s.brands {
		for _, token := range b.tokens {
			if strings.Contains(normalized, token) {
				if !b.legitimate(domain) {
					return b.name
				}
				break
			}
		}
	}
	return ""
}

func (b brand) legitimate(domain string) bool {
	for _, legit := range b.domains {
		if domain == legit || strings.HasSuffix(domain, "."+legit) {
			return true
		}
	}
	return false
}

func hasPunycodeLabel(domain string) bool {
	for _, label := range strings.Split(domain, ".") {
		if strings.HasPrefix(label, "xn--") {
			return true
		}
	}
	return false
}

func lastLabel(domain string) string {
	if domain == "" {
		return ""
	}
	labels := strings.Split(domain, ".")
	return labels[len(labels)-1]
}

func countPunycodeURLs(urls []string) int {
	n := 0
	for _, u := range urls {
		lowered := strings.ToLower(u)
		if strings.HasPrefix(lowered, "mailto:") {
			continue
		}
		if strings.Contains(lowered, "xn--") {
			n++
		}
	}
	return n
}
