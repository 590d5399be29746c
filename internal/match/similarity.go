package match

import (
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity returns an edit-distance similarity score between a and b in
// [0, 100]. 100 means identical strings; 0 means the edit distance equals or
// exceeds the longer string's length. Both inputs are expected to be
// normalised already; the score is computed over runes so Hangul syllables
// count as single units.
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}

	dist := matchr.Levenshtein(a, b)
	score := 100 - int(math.Round(float64(dist)*100/float64(longest)))
	if score < 0 {
		return 0
	}
	return score
}
