package rules

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/inboxforge/triage-engine/internal/core"
)

// Extraction scans subject and body with ordered regex families. The
// first parseable match per field wins; a field nothing matches stays
// unset. Extraction has no failure mode.

const datePattern = `((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`

var moneyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{2}))?`),
	regexp.MustCompile(`(?i)\b(?:usd|eur|gbp|cad|aud)\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{2}))?\b`),
	regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{2}))?\s?(?:usd|dollars)\b`),
}

var expiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bexpires?\s+(?:on\s+)?` + datePattern),
	regexp.MustCompile(`(?i)\bexpiration\s+date\s*:?\s*` + datePattern),
	regexp.MustCompile(`(?i)\b(?:offer|sale|deal|promotion)\s+ends?\s+(?:on\s+)?` + datePattern),
	regexp.MustCompile(`(?i)\bvalid\s+(?:until|through|thru)\s+` + datePattern),
}

var duePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:payment\s+)?due\s+(?:date\s*:?\s*|by\s+|on\s+)?` + datePattern),
	regexp.MustCompile(`(?i)\bpay\s+(?:before|by)\s+` + datePattern),
	regexp.MustCompile(`(?i)\bautopay\s+(?:date|on)\s*:?\s*` + datePattern),
}

var eventPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:join\s+us|happening|scheduled\s+for|starts?|rsvp\s+(?:for|by))\s+(?:on\s+)?` + datePattern),
	regexp.MustCompile(`(?i)\bevent\s+date\s*:?\s*` + datePattern),
	regexp.MustCompile(`(?i)\bon\s+` + datePattern),
}

// Extract pulls the structured fields out of one email. Due-date
// phrases feed the expiry field when no explicit expiry phrase
// matched.
func (m *Matcher) Extract(email *core.EmailView) core.ExtractedFields {
	text := email.Subject + "\n" + email.Body

	var out core.ExtractedFields
	if cents, ok := extractAmount(text); ok {
		out.AmountCents = &cents
	}
	if when, ok := extractDate(text, expiryPatterns); ok {
		out.ExpiresAt = &when
	} else if when, ok := extractDate(text, duePatterns); ok {
		out.ExpiresAt = &when
	}
	if when, ok := extractDate(text, eventPatterns); ok {
		out.EventStartAt = &when
	}
	return out
}

func extractAmount(text string) (int64, bool) {
	for _, re := range moneyPatterns {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			whole, err := strconv.ParseInt(strings.ReplaceAll(match[1], ",", ""), 10, 64)
			if err != nil {
				continue
			}
			cents := whole * 100
			if match[2] != "" {
				frac, err := strconv.ParseInt(match[2], 10, 64)
				if err != nil {
					continue
				}
				cents += frac
			}
			return cents, true
		}
	}
	return 0, false
}

func extractDate(text string, family []*regexp.Regexp) (time.Time, bool) {
	for _, re := range family {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			if when, ok := parseDate(match[1]); ok {
				return when, true
			}
		}
	}
	return time.Time{}, false
}

var slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parseDate handles the shapes datePattern captures: "March 3, 2026",
// "2026-03-03" and "3/14/2026" (month first). Dates are midnight UTC.
func parseDate(raw string) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))

	if when, err := time.Parse("2006-01-02", s); err == nil {
		return when, true
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return civilDate(year, month, day)
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.'
	})
	if len(fields) < 3 {
		return time.Time{}, false
	}
	name := fields[0]
	if len(name) < 3 {
		return time.Time{}, false
	}
	month, ok := monthsByPrefix[name[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(strings.TrimRight(fields[1], "stndrh"))
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, false
	}
	return civilDate(year, int(month), day)
}

// civilDate rejects impossible dates instead of letting time.Date
// normalize them into a different day.
func civilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	when := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if int(when.Month()) != month || when.Day() != day {
		return time.Time{}, false
	}
	return when, true
}
