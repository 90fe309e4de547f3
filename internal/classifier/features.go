package classifier

import (
	"slices"
	"strings"

	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/textutil"
)

// Numeric feature names as they appear in the model artifact.
const (
	featURLCount       = "url_count"
	featHasCurrency    = "has_currency"
	featHasUnsubscribe = "has_unsubscribe"
)

// Features is the inference-time feature view of one email.
type Features struct {
	Tokens         []string
	URLCount       int
	HasCurrency    bool
	HasUnsubscribe bool
}

// BuildFeatures tokenizes subject and body and derives the numeric
// features. Tokens come back deduplicated and sorted.
func BuildFeatures(email *core.EmailView) Features {
	tokens := textutil.Tokenize(email.Subject + " " + email.Body)
	slices.Sort(tokens)
	tokens = slices.Compact(tokens)

	return Features{
		Tokens:         tokens,
		URLCount:       len(email.URLs),
		HasCurrency:    strings.ContainsAny(email.Subject+email.Body, "$€£¥"),
		HasUnsubscribe: hasUnsubscribeHeader(email.Headers),
	}
}

func hasUnsubscribeHeader(headers map[string][]string) bool {
	for name := range headers {
		if strings.EqualFold(name, "List-Unsubscribe") {
			return true
		}
	}
	return false
}
