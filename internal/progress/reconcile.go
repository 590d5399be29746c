package progress

import (
	"time"

	"github.com/podonamu/sori/internal/bible"
)

// SessionSummary is the slice of a just-ended session that reconciliation
// needs: the full target list, how many leading verses were pre-skipped from
// a resume, and how many were covered (read or skipped) when the session
// ended.
type SessionSummary struct {
	Targets          []bible.Verse
	InitialSkipCount int
	CompletedCount   int
	EndedAt          time.Time
}

// VersesRead returns the number of verses actually read this session,
// excluding the pre-skipped resume prefix.
func (s SessionSummary) VersesRead() int {
	return s.CompletedCount - s.InitialSkipCount
}

// Reconcile folds a finished session into the durable progress record and
// returns the updated copy. The second return value reports whether anything
// changed; false means the caller must not persist (nothing new was read).
//
// Chapter completion is judged against the authoritative verse source, not
// the session's selection: a chapter is complete only when every canonical
// verse appears in the covered range. Skipped resume verses were read in an
// earlier session, so they count toward coverage but not toward the
// history's versesRead. The completed set only grows; existing keys are
// never dropped.
func Reconcile(sum SessionSummary, src bible.Source, prog UserProgress) (UserProgress, bool) {
	read := sum.VersesRead()
	if read <= 0 || sum.CompletedCount > len(sum.Targets) {
		return prog, false
	}

	updated := prog.Clone()
	covered := sum.Targets[:sum.CompletedCount]

	// Coverage per chapter, including the skipped prefix.
	type chapterID struct {
		book    string
		chapter int
	}
	coverage := make(map[chapterID]map[int]bool)
	for _, v := range covered {
		id := chapterID{v.Book, v.Chapter}
		if coverage[id] == nil {
			coverage[id] = make(map[int]bool)
		}
		coverage[id][v.Verse] = true
	}

	for id, verses := range coverage {
		if updated.HasCompleted(id.book, id.chapter) {
			continue
		}
		canonical := src.ChapterVerseNumbers(id.book, id.chapter)
		if len(canonical) == 0 {
			continue
		}
		complete := true
		for _, n := range canonical {
			if !verses[n] {
				complete = false
				break
			}
		}
		if complete {
			updated.CompletedChapters = append(updated.CompletedChapters, bible.ChapterKey(id.book, id.chapter))
		}
	}

	last := covered[len(covered)-1]
	updated.LastReadBook = last.Book
	updated.LastReadChapter = last.Chapter
	updated.LastReadVerse = last.Verse

	first := sum.Targets[sum.InitialSkipCount]
	updated.History = append(updated.History, SessionRecord{
		Date:         sum.EndedAt,
		Book:         first.Book,
		StartChapter: first.Chapter,
		StartVerse:   first.Verse,
		EndChapter:   last.Chapter,
		EndVerse:     last.Verse,
		VersesRead:   read,
	})

	return updated, true
}
