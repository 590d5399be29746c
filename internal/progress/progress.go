// Package progress holds the durable per-user reading progress model and the
// reconciliation that folds a finished session into it: bookmark advancement,
// monotonic completed-chapter merging, and the append-only session history.
package progress

import (
	"context"
	"slices"
	"time"

	"github.com/podonamu/sori/internal/bible"
)

// SessionRecord is one append-only history entry describing a finished
// reading session. JSON field names match the web client's API payloads.
type SessionRecord struct {
	Date         time.Time `json:"date"`
	Book         string    `json:"book"`
	StartChapter int       `json:"startChapter"`
	StartVerse   int       `json:"startVerse"`
	EndChapter   int       `json:"endChapter"`
	EndVerse     int       `json:"endVerse"`
	VersesRead   int       `json:"versesRead"`
}

// UserProgress is the durable progress record, one per user. Loaded at login,
// mutated only by reconciliation at session end, persisted via a [Store].
type UserProgress struct {
	// Bookmark: the last verse the user reached, overwritten at session end.
	LastReadBook    string `json:"lastReadBook"`
	LastReadChapter int    `json:"lastReadChapter"`
	LastReadVerse   int    `json:"lastReadVerse"`

	// CompletedChapters holds "book:chapter" keys. It only ever grows; a
	// chapter enters once every canonical verse has been covered across
	// some combination of sessions.
	CompletedChapters []string `json:"completedChapters"`

	// History is the append-only session log, oldest first.
	History []SessionRecord `json:"history"`
}

// HasCompleted reports whether the chapter is in the completed set.
func (p *UserProgress) HasCompleted(book string, chapter int) bool {
	return slices.Contains(p.CompletedChapters, bible.ChapterKey(book, chapter))
}

// Clone returns a deep copy, so stores and callers never alias slices.
func (p UserProgress) Clone() UserProgress {
	p.CompletedChapters = slices.Clone(p.CompletedChapters)
	p.History = slices.Clone(p.History)
	return p
}

// Standing is one leaderboard row: a user's bookmark plus their
// completed-chapter count.
type Standing struct {
	Username          string `json:"username"`
	LastReadBook      string `json:"lastReadBook"`
	LastReadChapter   int    `json:"lastReadChapter"`
	LastReadVerse     int    `json:"lastReadVerse"`
	CompletedChapters int    `json:"completedChapters"`
}

// SortStandings orders standings for display: most completed chapters first,
// ties broken by how far the bookmark sits in canonical book order, then by
// chapter and verse descending. Users with bookmarks outside the canon sort
// last within their tie group.
func SortStandings(standings []Standing) {
	slices.SortStableFunc(standings, func(a, b Standing) int {
		if a.CompletedChapters != b.CompletedChapters {
			return b.CompletedChapters - a.CompletedChapters
		}
		ai, bi := bible.BookIndex(a.LastReadBook), bible.BookIndex(b.LastReadBook)
		if ai == -1 {
			ai = len(bible.Books)
		}
		if bi == -1 {
			bi = len(bible.Books)
		}
		if ai != bi {
			return ai - bi
		}
		if a.LastReadChapter != b.LastReadChapter {
			return b.LastReadChapter - a.LastReadChapter
		}
		return b.LastReadVerse - a.LastReadVerse
	})
}

// Store persists per-user progress records.
//
// Load must return a zero-value UserProgress (never an error) for users with
// no stored progress yet. Save is an idempotent upsert; callers treat a Save
// failure as advisory and never let it unwind session state.
type Store interface {
	Load(ctx context.Context, username string) (UserProgress, error)
	Save(ctx context.Context, username string, p UserProgress) error
}

// StandingsProvider is implemented by stores that can enumerate all users'
// progress for the leaderboard.
type StandingsProvider interface {
	Standings(ctx context.Context) ([]Standing, error)
}
