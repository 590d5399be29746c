// Package match implements the verse-match engine: text normalisation,
// Levenshtein-based similarity scoring, a curated difficulty classifier, and
// the lookback-window accept rule that decides when a live transcript counts
// as a read verse.
package match

import (
	"strings"
	"unicode"
)

// punctuation is the fixed set of characters stripped before comparison.
// Matches the recogniser-facing normalisation of the web client, including
// the full-width space (U+3000).
const punctuation = ".,/#!$%^&*;:{}=-_`~()?　"

// Normalize lowercases s and removes the fixed punctuation set and all
// whitespace. It is pure, total, and idempotent; both the target verse and
// the live transcript pass through it before any comparison.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || strings.ContainsRune(punctuation, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
