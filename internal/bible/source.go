// Package bible provides the authoritative Korean Bible text source: verse
// lookup over a user-selected chapter range and the canonical verse list per
// chapter. Reading-progress reconciliation depends on the canonical lists to
// decide chapter completion, so the Source interface exposes chapter contents
// independent of any session's selection.
package bible

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Verse is a single verse of Bible text. Immutable once loaded; identity is
// (Book, Chapter, Verse).
type Verse struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// Ref returns the short citation form, e.g. "창세기 1:3".
func (v Verse) Ref() string {
	return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse)
}

// ChapterKey returns the "book:chapter" key used in completed-chapter sets.
func ChapterKey(book string, chapter int) string {
	return fmt.Sprintf("%s:%d", book, chapter)
}

// ParseChapterKey splits a "book:chapter" key back into its parts. The third
// return is false when the key is malformed.
func ParseChapterKey(key string) (string, int, bool) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 {
		return "", 0, false
	}
	chapter, err := strconv.Atoi(key[i+1:])
	if err != nil || chapter < 1 {
		return "", 0, false
	}
	return key[:i], chapter, true
}

// Source is the authoritative verse lookup consumed by session setup and
// progress reconciliation. Implementations must be safe for concurrent use.
type Source interface {
	// VersesForRange returns every verse of book from startChapter through
	// endChapter (inclusive) in canonical order. Chapters absent from the
	// data are skipped; an unknown book or empty range yields nil.
	VersesForRange(book string, startChapter, endChapter int) []Verse

	// ChapterVerseNumbers returns the canonical verse numbers of the given
	// chapter in ascending order, or nil when the chapter has no data.
	ChapterVerseNumbers(book string, chapter int) []int

	// HasBook reports whether any text is loaded for book.
	HasBook(book string) bool
}

// Data is an in-memory Source backed by the hierarchical Bible JSON file
// (book → chapter → verse → text). Read-only after construction.
type Data struct {
	books map[string]map[int]map[int]string
}

var _ Source = (*Data)(nil)

// VersesForRange implements [Source].
func (d *Data) VersesForRange(book string, startChapter, endChapter int) []Verse {
	chapters, ok := d.books[book]
	if !ok {
		return nil
	}
	var out []Verse
	for c := startChapter; c <= endChapter; c++ {
		verses, ok := chapters[c]
		if !ok {
			continue
		}
		nums := sortedKeys(verses)
		for _, n := range nums {
			out = append(out, Verse{Book: book, Chapter: c, Verse: n, Text: verses[n]})
		}
	}
	return out
}

// ChapterVerseNumbers implements [Source].
func (d *Data) ChapterVerseNumbers(book string, chapter int) []int {
	chapters, ok := d.books[book]
	if !ok {
		return nil
	}
	verses, ok := chapters[chapter]
	if !ok {
		return nil
	}
	return sortedKeys(verses)
}

// HasBook implements [Source].
func (d *Data) HasBook(book string) bool {
	return len(d.books[book]) > 0
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
