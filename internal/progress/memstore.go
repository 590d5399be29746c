package progress

import (
	"context"
	"sync"
)

// MemStore is an in-memory [Store] for tests and DSN-less development runs.
// Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]UserProgress
}

var (
	_ Store             = (*MemStore)(nil)
	_ StandingsProvider = (*MemStore)(nil)
)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]UserProgress)}
}

// Load implements [Store]. Unknown users get a zero-value record.
func (m *MemStore) Load(_ context.Context, username string) (UserProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[username].Clone(), nil
}

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, username string, p UserProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[username] = p.Clone()
	return nil
}

// Standings implements [StandingsProvider]. Order is unspecified; callers
// sort with [SortStandings].
func (m *MemStore) Standings(context.Context) ([]Standing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	standings := make([]Standing, 0, len(m.records))
	for name, p := range m.records {
		standings = append(standings, Standing{
			Username:          name,
			LastReadBook:      p.LastReadBook,
			LastReadChapter:   p.LastReadChapter,
			LastReadVerse:     p.LastReadVerse,
			CompletedChapters: len(p.CompletedChapters),
		})
	}
	return standings, nil
}
