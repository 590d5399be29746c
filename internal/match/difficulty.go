package match

import "strings"

// defaultDifficultWords lists words and names the Korean recogniser
// transcribes poorly in practice. Mostly transliterated proper nouns and
// archaic endings; curated from reading-session feedback, not learned.
var defaultDifficultWords = []string{
	"멜기세덱",
	"그돌라오멜",
	"느부갓네살",
	"스룹바벨",
	"맛두셀라",
	"아르박삿",
	"마헬살랄하스바스",
	"여호와이레",
	"에벤에셀",
	"브살렐",
	"아비멜렉",
	"엘엘로헤이스라엘",
	"할례",
	"번제",
	"소제",
	"속건제",
}

// Classifier flags verses containing hard-to-transcribe words so the engine
// can apply a relaxed similarity threshold. Pure lookup over the raw
// (non-normalised) verse text; read-only after construction.
type Classifier struct {
	words []string
}

// NewClassifier creates a Classifier over the given word list. With no words
// it falls back to the built-in curated set.
func NewClassifier(words ...string) *Classifier {
	if len(words) == 0 {
		words = defaultDifficultWords
	}
	return &Classifier{words: words}
}

// IsDifficult reports whether verseText contains any flagged word.
func (c *Classifier) IsDifficult(verseText string) bool {
	for _, w := range c.words {
		if strings.Contains(verseText, w) {
			return true
		}
	}
	return false
}
