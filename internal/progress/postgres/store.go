// Package postgres persists reading progress in a PostgreSQL database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/progress"
)

var (
	_ progress.Store             = (*Store)(nil)
	_ progress.StandingsProvider = (*Store)(nil)
)

// Store is a PostgreSQL-backed [progress.Store]. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, pings it,
// and runs [Migrate] to ensure all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureUser creates the user row if it does not exist and returns its id.
func (s *Store) EnsureUser(ctx context.Context, username string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id`, username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres store: ensure user %q: %w", username, err)
	}
	return id, nil
}

// Load returns the stored progress for username. An unknown user yields the
// zero value and no error.
func (s *Store) Load(ctx context.Context, username string) (progress.UserProgress, error) {
	var p progress.UserProgress

	id, ok, err := s.userID(ctx, username)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, nil
	}

	err = s.pool.QueryRow(ctx, `
		SELECT last_read_book, last_read_chapter, last_read_verse
		FROM reading_progress WHERE user_id = $1`, id).
		Scan(&p.LastReadBook, &p.LastReadChapter, &p.LastReadVerse)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return progress.UserProgress{}, fmt.Errorf("postgres store: load bookmark: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT book_name, chapter_number FROM completed_chapters
		WHERE user_id = $1 ORDER BY completed_at, book_name, chapter_number`, id)
	if err != nil {
		return progress.UserProgress{}, fmt.Errorf("postgres store: load chapters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var book string
		var chapter int
		if err := rows.Scan(&book, &chapter); err != nil {
			return progress.UserProgress{}, fmt.Errorf("postgres store: scan chapter: %w", err)
		}
		p.CompletedChapters = append(p.CompletedChapters, bible.ChapterKey(book, chapter))
	}
	if err := rows.Err(); err != nil {
		return progress.UserProgress{}, fmt.Errorf("postgres store: load chapters: %w", err)
	}

	hrows, err := s.pool.Query(ctx, `
		SELECT date, book_name, start_chapter, start_verse, end_chapter, end_verse, verses_read
		FROM reading_history WHERE user_id = $1 ORDER BY seq`, id)
	if err != nil {
		return progress.UserProgress{}, fmt.Errorf("postgres store: load history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var r progress.SessionRecord
		if err := hrows.Scan(&r.Date, &r.Book, &r.StartChapter, &r.StartVerse,
			&r.EndChapter, &r.EndVerse, &r.VersesRead); err != nil {
			return progress.UserProgress{}, fmt.Errorf("postgres store: scan history: %w", err)
		}
		p.History = append(p.History, r)
	}
	if err := hrows.Err(); err != nil {
		return progress.UserProgress{}, fmt.Errorf("postgres store: load history: %w", err)
	}

	return p, nil
}

// Save writes the full progress snapshot for username inside one transaction.
// Completed chapters and history rows use insert-if-absent semantics, so
// replaying the same snapshot is a no-op.
func (s *Store) Save(ctx context.Context, username string, p progress.UserProgress) error {
	id, err := s.EnsureUser(ctx, username)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO reading_progress (user_id, last_read_book, last_read_chapter, last_read_verse, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			last_read_book = EXCLUDED.last_read_book,
			last_read_chapter = EXCLUDED.last_read_chapter,
			last_read_verse = EXCLUDED.last_read_verse,
			updated_at = now()`,
		id, p.LastReadBook, p.LastReadChapter, p.LastReadVerse)
	if err != nil {
		return fmt.Errorf("postgres store: save bookmark: %w", err)
	}

	for _, key := range p.CompletedChapters {
		book, chapter, ok := bible.ParseChapterKey(key)
		if !ok {
			continue
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO completed_chapters (user_id, book_name, chapter_number)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, book_name, chapter_number) DO NOTHING`,
			id, book, chapter)
		if err != nil {
			return fmt.Errorf("postgres store: save chapter %s: %w", key, err)
		}
	}

	for seq, r := range p.History {
		_, err = tx.Exec(ctx, `
			INSERT INTO reading_history
				(user_id, seq, date, book_name, start_chapter, start_verse, end_chapter, end_verse, verses_read)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (user_id, seq) DO NOTHING`,
			id, seq, r.Date, r.Book, r.StartChapter, r.StartVerse, r.EndChapter, r.EndVerse, r.VersesRead)
		if err != nil {
			return fmt.Errorf("postgres store: save history %d: %w", seq, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Standings returns one entry per known user, unsorted. Callers order them
// with [progress.SortStandings].
func (s *Store) Standings(ctx context.Context) ([]progress.Standing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.username,
		       COALESCE(rp.last_read_book, ''),
		       COALESCE(rp.last_read_chapter, 0),
		       COALESCE(rp.last_read_verse, 0),
		       (SELECT COUNT(*) FROM completed_chapters cc WHERE cc.user_id = u.id)
		FROM users u
		LEFT JOIN reading_progress rp ON rp.user_id = u.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: standings: %w", err)
	}
	defer rows.Close()

	var standings []progress.Standing
	for rows.Next() {
		var st progress.Standing
		if err := rows.Scan(&st.Username, &st.LastReadBook, &st.LastReadChapter,
			&st.LastReadVerse, &st.CompletedChapters); err != nil {
			return nil, fmt.Errorf("postgres store: scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: standings: %w", err)
	}
	return standings, nil
}

func (s *Store) userID(ctx context.Context, username string) (int, bool, error) {
	var id int
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres store: lookup user %q: %w", username, err)
	}
	return id, true, nil
}
