package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize case-folds and NFKC-normalizes text so that lexicon and
// token lookups are insensitive to case and to Unicode presentation
// forms (full-width characters, ligatures, compatibility digits).
// A Caser is stateful, so a fresh one is built per call.
func Normalize(text string) string {
	return cases.Fold().String(norm.NFKC.String(text))
}

// Tokenize splits normalized text into word tokens. Digits are kept so
// tokens like "2fa" and "401k" survive.
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SanitizeUTF8 drops invalid UTF-8 sequences from text.
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}

// Truncate safely truncates text to maxSize bytes, keeping the result
// valid UTF-8. A maxSize of zero or less means no limit.
func Truncate(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}
