package progress

import (
	"testing"
	"time"

	"github.com/podonamu/sori/internal/bible"
)

// fakeSource serves canonical verse lists 1..n per chapter.
type fakeSource struct {
	chapters map[string]map[int]int
}

func (f *fakeSource) VersesForRange(book string, startChapter, endChapter int) []bible.Verse {
	var verses []bible.Verse
	for ch := startChapter; ch <= endChapter; ch++ {
		for i := 1; i <= f.chapters[book][ch]; i++ {
			verses = append(verses, bible.Verse{Book: book, Chapter: ch, Verse: i, Text: "본문"})
		}
	}
	return verses
}

func (f *fakeSource) ChapterVerseNumbers(book string, chapter int) []int {
	n := f.chapters[book][chapter]
	nums := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		nums = append(nums, i)
	}
	return nums
}

func (f *fakeSource) HasBook(book string) bool {
	return f.chapters[book] != nil
}

func makeTargets(book string, chapter, count int) []bible.Verse {
	targets := make([]bible.Verse, 0, count)
	for i := 1; i <= count; i++ {
		targets = append(targets, bible.Verse{Book: book, Chapter: chapter, Verse: i, Text: "본문"})
	}
	return targets
}

var genesis = &fakeSource{chapters: map[string]map[int]int{
	"창세기": {1: 31, 2: 25},
}}

func TestReconcileCompletesChapter(t *testing.T) {
	t.Parallel()

	ended := time.Date(2026, 9, 1, 21, 0, 0, 0, time.UTC)
	sum := SessionSummary{
		Targets:        makeTargets("창세기", 1, 31),
		CompletedCount: 31,
		EndedAt:        ended,
	}

	updated, changed := Reconcile(sum, genesis, UserProgress{})
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if !updated.HasCompleted("창세기", 1) {
		t.Error("창세기 1 not marked complete")
	}
	if updated.LastReadBook != "창세기" || updated.LastReadChapter != 1 || updated.LastReadVerse != 31 {
		t.Errorf("bookmark = %s %d:%d, want 창세기 1:31",
			updated.LastReadBook, updated.LastReadChapter, updated.LastReadVerse)
	}
	if len(updated.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(updated.History))
	}
	rec := updated.History[0]
	if rec.StartVerse != 1 || rec.EndVerse != 31 || rec.VersesRead != 31 {
		t.Errorf("history = start %d end %d read %d, want 1/31/31",
			rec.StartVerse, rec.EndVerse, rec.VersesRead)
	}
	if !rec.Date.Equal(ended) {
		t.Errorf("history date = %v, want %v", rec.Date, ended)
	}
}

func TestReconcileResumeCountsSkippedVerses(t *testing.T) {
	t.Parallel()

	// Resume at verse 15: the first 14 verses were read in an earlier
	// session. They count toward chapter completeness but not versesRead.
	sum := SessionSummary{
		Targets:          makeTargets("창세기", 1, 31),
		InitialSkipCount: 14,
		CompletedCount:   31,
		EndedAt:          time.Now(),
	}
	prior := UserProgress{LastReadBook: "창세기", LastReadChapter: 1, LastReadVerse: 14}

	updated, changed := Reconcile(sum, genesis, prior)
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if !updated.HasCompleted("창세기", 1) {
		t.Error("창세기 1 not marked complete after resumed full read")
	}
	rec := updated.History[0]
	if rec.StartVerse != 15 {
		t.Errorf("history start verse = %d, want 15", rec.StartVerse)
	}
	if rec.VersesRead != 17 {
		t.Errorf("versesRead = %d, want 17", rec.VersesRead)
	}
}

func TestReconcilePartialReadNoCompletion(t *testing.T) {
	t.Parallel()

	sum := SessionSummary{
		Targets:        makeTargets("창세기", 1, 31),
		CompletedCount: 20,
		EndedAt:        time.Now(),
	}

	updated, changed := Reconcile(sum, genesis, UserProgress{})
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if updated.HasCompleted("창세기", 1) {
		t.Error("창세기 1 marked complete from a partial read")
	}
	if updated.LastReadVerse != 20 {
		t.Errorf("bookmark verse = %d, want 20", updated.LastReadVerse)
	}
	if updated.History[0].VersesRead != 20 {
		t.Errorf("versesRead = %d, want 20", updated.History[0].VersesRead)
	}
}

func TestReconcilePartialSelectionNeverCompletes(t *testing.T) {
	t.Parallel()

	// Selecting only verses 1..10 of a 31-verse chapter and finishing them
	// all must not complete the chapter: completeness is judged against the
	// canonical list, not the session's selection.
	sum := SessionSummary{
		Targets:        makeTargets("창세기", 1, 10),
		CompletedCount: 10,
		EndedAt:        time.Now(),
	}

	updated, changed := Reconcile(sum, genesis, UserProgress{})
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if updated.HasCompleted("창세기", 1) {
		t.Error("창세기 1 marked complete from a partial selection")
	}
}

func TestReconcileZeroReadIsNoOp(t *testing.T) {
	t.Parallel()

	prior := UserProgress{
		LastReadBook:      "창세기",
		LastReadChapter:   1,
		LastReadVerse:     14,
		CompletedChapters: []string{"창세기:2"},
	}

	tests := []struct {
		name string
		sum  SessionSummary
	}{
		{"nothing covered", SessionSummary{
			Targets: makeTargets("창세기", 1, 31),
		}},
		{"stopped at resume point", SessionSummary{
			Targets:          makeTargets("창세기", 1, 31),
			InitialSkipCount: 14,
			CompletedCount:   14,
		}},
		{"count exceeds targets", SessionSummary{
			Targets:        makeTargets("창세기", 1, 5),
			CompletedCount: 6,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, changed := Reconcile(tt.sum, genesis, prior)
			if changed {
				t.Fatal("Reconcile() changed = true, want false")
			}
			if len(updated.History) != len(prior.History) {
				t.Error("history appended on a no-op session")
			}
			if updated.LastReadVerse != prior.LastReadVerse {
				t.Error("bookmark moved on a no-op session")
			}
		})
	}
}

func TestReconcileMergeIsMonotonic(t *testing.T) {
	t.Parallel()

	prior := UserProgress{
		CompletedChapters: []string{"창세기:1", "창세기:2"},
	}
	sum := SessionSummary{
		Targets:        makeTargets("창세기", 1, 31),
		CompletedCount: 31,
		EndedAt:        time.Now(),
	}

	updated, changed := Reconcile(sum, genesis, prior)
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if got := len(updated.CompletedChapters); got != 2 {
		t.Errorf("len(CompletedChapters) = %d, want 2 (no duplicates, nothing dropped)", got)
	}
	if !updated.HasCompleted("창세기", 2) {
		t.Error("untouched chapter 창세기:2 dropped from completed set")
	}
}

func TestReconcileMultiChapterRange(t *testing.T) {
	t.Parallel()

	targets := append(makeTargets("창세기", 1, 31), makeTargets("창세기", 2, 25)...)
	sum := SessionSummary{
		Targets:        targets,
		CompletedCount: 31 + 10, // all of chapter 1, part of chapter 2
		EndedAt:        time.Now(),
	}

	updated, changed := Reconcile(sum, genesis, UserProgress{})
	if !changed {
		t.Fatal("Reconcile() changed = false, want true")
	}
	if !updated.HasCompleted("창세기", 1) {
		t.Error("창세기 1 not marked complete")
	}
	if updated.HasCompleted("창세기", 2) {
		t.Error("창세기 2 marked complete at verse 10 of 25")
	}
	if updated.LastReadChapter != 2 || updated.LastReadVerse != 10 {
		t.Errorf("bookmark = %d:%d, want 2:10", updated.LastReadChapter, updated.LastReadVerse)
	}
}
