package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/match"
	"github.com/podonamu/sori/internal/progress"
	"github.com/podonamu/sori/internal/transcribe"
	"github.com/podonamu/sori/internal/transcribe/mock"
)

// fakeVerses serves synthetic chapters with distinct, speech-length verse
// text so exact transcripts always match.
type fakeVerses struct {
	chapters map[string]map[int]int
}

func (f *fakeVerses) verseText(book string, chapter, verse int) string {
	return fmt.Sprintf("%s %d장의 %d번째 말씀을 낭독하는 본문이라", book, chapter, verse)
}

func (f *fakeVerses) VersesForRange(book string, startChapter, endChapter int) []bible.Verse {
	var verses []bible.Verse
	for ch := startChapter; ch <= endChapter; ch++ {
		for i := 1; i <= f.chapters[book][ch]; i++ {
			verses = append(verses, bible.Verse{
				Book: book, Chapter: ch, Verse: i,
				Text: f.verseText(book, ch, i),
			})
		}
	}
	return verses
}

func (f *fakeVerses) ChapterVerseNumbers(book string, chapter int) []int {
	n := f.chapters[book][chapter]
	nums := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		nums = append(nums, i)
	}
	return nums
}

func (f *fakeVerses) HasBook(book string) bool {
	return f.chapters[book] != nil
}

var testVerses = &fakeVerses{chapters: map[string]map[int]int{
	"창세기": {1: 31, 2: 25},
}}

func newTestController(t *testing.T, prog progress.UserProgress) (*Controller, *mock.Source, *progress.MemStore) {
	t.Helper()
	source := mock.New()
	store := progress.NewMemStore()
	c := New("시온", prog, match.NewEngine(), source, testVerses, store,
		WithClock(func() time.Time {
			return time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
		}))
	return c, source, store
}

// readThrough drives the session from IDLE through matching each target in
// order, returning the final update.
func readThrough(t *testing.T, c *Controller, targets []bible.Verse) Update {
	t.Helper()
	ctx := context.Background()

	var last Update
	for _, v := range targets {
		upd, err := c.HandleTranscript(ctx, v.Text)
		if err != nil {
			t.Fatalf("HandleTranscript(%s) error = %v", v.Ref(), err)
		}
		if upd.Matched == nil {
			t.Fatalf("HandleTranscript(%s) did not match, similarity %d", v.Ref(), upd.Result.Similarity)
		}
		last = upd
	}
	return last
}

func TestFullReadCompletesChapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, source, store := newTestController(t, progress.UserProgress{})

	upd, err := c.Begin("창세기", 1, 1)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if upd.State != StateReading || upd.Next == nil || upd.Next.Verse != 1 {
		t.Fatalf("Begin() update = %+v, want READING at verse 1", upd)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	last := readThrough(t, c, c.Targets())

	if last.State != StateCompleted {
		t.Errorf("final state = %s, want %s", last.State, StateCompleted)
	}
	want := "창세기 1장 1절 ~ 창세기 1장 31절 (총 31절) 읽기 완료!"
	if last.Certification != want {
		t.Errorf("certification = %q, want %q", last.Certification, want)
	}
	if last.VersesRead != 31 {
		t.Errorf("versesRead = %d, want 31", last.VersesRead)
	}
	if source.AdvanceCalls != 30 {
		t.Errorf("AdvanceCalls = %d, want 30", source.AdvanceCalls)
	}
	if source.StopCalls != 1 {
		t.Errorf("StopCalls = %d, want 1", source.StopCalls)
	}
	if got := len(c.MatchedLog()); got != 31 {
		t.Errorf("len(MatchedLog()) = %d, want 31", got)
	}

	saved, err := store.Load(ctx, "시온")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !saved.HasCompleted("창세기", 1) {
		t.Error("창세기:1 not in persisted completed chapters")
	}
	if len(saved.History) != 1 || saved.History[0].VersesRead != 31 {
		t.Errorf("persisted history = %+v, want one entry with versesRead 31", saved.History)
	}
}

func TestResumeSkipsReadVerses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prior := progress.UserProgress{LastReadBook: "창세기", LastReadChapter: 1, LastReadVerse: 14}
	c, _, store := newTestController(t, prior)

	upd, err := c.Begin("창세기", 1, 1)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if upd.Next.Verse != 15 {
		t.Fatalf("resume target = verse %d, want 15", upd.Next.Verse)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	last := readThrough(t, c, c.Targets()[14:])

	want := "창세기 1장 15절 ~ 창세기 1장 31절 (총 17절) 읽기 완료!"
	if last.Certification != want {
		t.Errorf("certification = %q, want %q", last.Certification, want)
	}

	saved, _ := store.Load(ctx, "시온")
	if !saved.HasCompleted("창세기", 1) {
		t.Error("chapter not complete: skipped prefix must count toward coverage")
	}
	if len(saved.History) != 1 || saved.History[0].VersesRead != 17 {
		t.Errorf("history = %+v, want one entry with versesRead 17", saved.History)
	}
}

func TestManualStopPersistsPartialRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, store := newTestController(t, progress.UserProgress{})

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	readThrough(t, c, c.Targets()[:3])

	upd, err := c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if upd.State != StateIdle {
		t.Errorf("state after stop = %s, want %s", upd.State, StateIdle)
	}
	want := "창세기 1장 1절 ~ 창세기 1장 3절 (총 3절) 읽음 (세션 중지)."
	if upd.Certification != want {
		t.Errorf("certification = %q, want %q", upd.Certification, want)
	}

	saved, _ := store.Load(ctx, "시온")
	if saved.HasCompleted("창세기", 1) {
		t.Error("partial read must not complete the chapter")
	}
	if saved.LastReadVerse != 3 {
		t.Errorf("bookmark verse = %d, want 3", saved.LastReadVerse)
	}
}

func TestManualStopWithNothingRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prior := progress.UserProgress{LastReadBook: "창세기", LastReadChapter: 1, LastReadVerse: 14}
	c, _, store := newTestController(t, prior)

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	upd, err := c.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if upd.Certification != "이번 세션에서 읽은 구절이 없습니다." {
		t.Errorf("certification = %q", upd.Certification)
	}
	if upd.VersesRead != 0 {
		t.Errorf("versesRead = %d, want 0", upd.VersesRead)
	}

	saved, _ := store.Load(ctx, "시온")
	if len(saved.History) != 0 {
		t.Errorf("history = %+v, want empty: nothing new was read", saved.History)
	}
}

func TestBeginRejectsBadSelections(t *testing.T) {
	t.Parallel()

	t.Run("unknown book", func(t *testing.T) {
		c, _, _ := newTestController(t, progress.UserProgress{})
		if _, err := c.Begin("없는책", 1, 1); !errors.Is(err, ErrNoVerses) {
			t.Errorf("Begin() error = %v, want ErrNoVerses", err)
		}
	})

	t.Run("fully read range", func(t *testing.T) {
		prior := progress.UserProgress{LastReadBook: "창세기", LastReadChapter: 1, LastReadVerse: 31}
		c, _, _ := newTestController(t, prior)
		if _, err := c.Begin("창세기", 1, 1); !errors.Is(err, ErrAlreadyRead) {
			t.Errorf("Begin() error = %v, want ErrAlreadyRead", err)
		}
	})

	t.Run("begin mid-session", func(t *testing.T) {
		c, _, _ := newTestController(t, progress.UserProgress{})
		if _, err := c.Begin("창세기", 1, 1); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if _, err := c.Begin("창세기", 2, 2); !errors.Is(err, ErrState) {
			t.Errorf("second Begin() error = %v, want ErrState", err)
		}
	})

	t.Run("different book reads full range", func(t *testing.T) {
		prior := progress.UserProgress{LastReadBook: "출애굽기", LastReadChapter: 40, LastReadVerse: 38}
		c, _, _ := newTestController(t, prior)
		upd, err := c.Begin("창세기", 1, 1)
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if upd.Next.Verse != 1 {
			t.Errorf("target verse = %d, want 1 (no cross-book skip)", upd.Next.Verse)
		}
	})
}

func TestFailedMatchDoesNotAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newTestController(t, progress.UserProgress{})

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	upd, err := c.HandleTranscript(ctx, "전혀 관계 없는 말")
	if err != nil {
		t.Fatalf("HandleTranscript() error = %v", err)
	}
	if upd.Matched != nil {
		t.Error("unrelated speech matched")
	}
	if upd.Next == nil || upd.Next.Verse != 1 {
		t.Errorf("target moved off verse 1: %+v", upd.Next)
	}
	if got := len(c.MatchedLog()); got != 0 {
		t.Errorf("len(MatchedLog()) = %d, want 0", got)
	}
}

func TestRetryKeepsCurrentVerse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, source, _ := newTestController(t, progress.UserProgress{})

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	readThrough(t, c, c.Targets()[:1])

	upd, err := c.Retry(ctx)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if upd.State != StateListening {
		t.Errorf("state = %s, want %s", upd.State, StateListening)
	}
	if upd.Next.Verse != 2 {
		t.Errorf("retry target = verse %d, want 2 (unchanged)", upd.Next.Verse)
	}
	if source.RestartCalls != 1 {
		t.Errorf("RestartCalls = %d, want 1 (full cycle, not soft reset)", source.RestartCalls)
	}
}

// failingSource wraps the mock to make Start fail.
type failingSource struct {
	transcribe.Source
	startErr error
}

func (f *failingSource) Start(context.Context) error { return f.startErr }

func TestUnsupportedEnvironmentRoutesToError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	source := &failingSource{Source: mock.New(), startErr: transcribe.ErrUnsupported}
	c := New("시온", progress.UserProgress{}, match.NewEngine(), source, testVerses, progress.NewMemStore())

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	upd, err := c.StartListening(ctx)
	if !errors.Is(err, transcribe.ErrUnsupported) {
		t.Fatalf("StartListening() error = %v, want ErrUnsupported", err)
	}
	if upd.State != StateError {
		t.Errorf("state = %s, want %s", upd.State, StateError)
	}
}

func TestSourceErrorSeverity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newTestController(t, progress.UserProgress{})

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}

	if upd, ok := c.HandleSourceError(transcribe.ErrNoSpeech); !ok || upd.State != StateListening {
		t.Errorf("no-speech: ok=%v state=%s, want advisory in LISTENING", ok, upd.State)
	}
	if upd, ok := c.HandleSourceError(transcribe.ErrUnsupported); ok || upd.State != StateError {
		t.Errorf("unsupported: ok=%v state=%s, want fatal ERROR", ok, upd.State)
	}
}

func TestMatchedLogFormat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newTestController(t, progress.UserProgress{})

	if _, err := c.Begin("창세기", 1, 1); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := c.StartListening(ctx); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	readThrough(t, c, c.Targets()[:1])

	log := c.MatchedLog()
	if len(log) != 1 {
		t.Fatalf("len(MatchedLog()) = %d, want 1", len(log))
	}
	if !strings.HasPrefix(log[0], "창세기 1:1 ") {
		t.Errorf("log entry = %q, want citation prefix 창세기 1:1", log[0])
	}
}
