package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/triage-engine/internal/core"
)

const testSpecYAML = `
version: "test-1"
priority: [ats, bills, banks, events, promotions, other]
opportunity_categories: [ats]
categories:
  ats:
    header_needles: ["x-greenhouse", "lever.co"]
    domain_patterns: ["greenhouse.io", "*.lever.co"]
    lexicon: ["your application", "interview availability"]
  bills:
    domain_patterns: ["billing.acme.com"]
    lexicon: ["payment due", "invoice attached"]
  promotions:
    header_needles: ["list-unsubscribe"]
    lexicon: ["% off", "flash sale"]
  other: {}
brands:
  - name: paypal
    tokens: [paypal]
    domains: [paypal.com, paypal.co.uk]
suspicious_tlds: [tk, top, zip]
`

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	spec, err := ParseSpec([]byte(testSpecYAML))
	require.NoError(t, err)
	m, err := NewMatcher(spec)
	require.NoError(t, err)
	return m
}

func TestMatch_HeaderNeedle(t *testing.T) {
	m := testMatcher(t)

	email := &core.EmailView{
		Subject: "Next steps",
		Headers: map[string][]string{
			"X-Greenhouse-Candidate": {"12345"},
		},
	}
	matches := m.Match(email)
	assert.True(t, matches["ats"])
	assert.False(t, matches["bills"])
}

func TestMatch_DomainPatterns(t *testing.T) {
	m := testMatcher(t)

	// Exact pattern matches the apex and subdomains.
	apex := &core.EmailView{SenderDomain: "greenhouse.io"}
	sub := &core.EmailView{SenderDomain: "mail.greenhouse.io"}
	assert.True(t, m.Match(apex)["ats"])
	assert.True(t, m.Match(sub)["ats"])

	// Wildcard pattern matches subdomains only.
	wildSub := &core.EmailView{SenderDomain: "jobs.lever.co"}
	wildApex := &core.EmailView{SenderDomain: "lever.co"}
	assert.True(t, m.Match(wildSub)["ats"])
	assert.False(t, m.Match(wildApex)["ats"])

	// Suffix matching respects label boundaries.
	lookalike := &core.EmailView{SenderDomain: "notgreenhouse.io"}
	assert.False(t, m.Match(lookalike)["ats"])
}

func TestMatch_LexiconIsCaseAndWidthInsensitive(t *testing.T) {
	m := testMatcher(t)

	email := &core.EmailView{
		Subject: "RE: INTERVIEW AVAILABILITY",
		Body:    "see below",
	}
	assert.True(t, m.Match(email)["ats"])
}

func TestMatch_ReturnsEveryCategory(t *testing.T) {
	m := testMatcher(t)

	matches := m.Match(&core.EmailView{Subject: "hello"})
	assert.Len(t, matches, 4)
	for _, matched := range matches {
		assert.False(t, matched)
	}
}

func TestRank_FollowsPriorityList(t *testing.T) {
	m := testMatcher(t)

	// ats outranks bills outranks promotions outranks other.
	assert.Less(t, m.Rank("ats"), m.Rank("bills"))
	assert.Less(t, m.Rank("bills"), m.Rank("promotions"))
	assert.Less(t, m.Rank("promotions"), m.Rank("other"))
	// Unknown categories rank last.
	assert.Greater(t, m.Rank("mystery"), m.Rank("other"))
}

func TestIsOpportunity(t *testing.T) {
	m := testMatcher(t)
	assert.True(t, m.IsOpportunity("ats"))
	assert.False(t, m.IsOpportunity("promotions"))
}

func TestParseSpec_RejectsEmpty(t *testing.T) {
	_, err := ParseSpec([]byte(`version: "x"`))
	assert.Error(t, err)
}
