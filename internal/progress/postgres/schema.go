package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order by [Migrate]. Every statement is
// idempotent so startup can run them unconditionally.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         SERIAL PRIMARY KEY,
		username   VARCHAR(255) UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS reading_progress (
		user_id           INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		last_read_book    VARCHAR(255) NOT NULL DEFAULT '',
		last_read_chapter INTEGER NOT NULL DEFAULT 0,
		last_read_verse   INTEGER NOT NULL DEFAULT 0,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS completed_chapters (
		user_id        INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_name      VARCHAR(255) NOT NULL,
		chapter_number INTEGER NOT NULL,
		completed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, book_name, chapter_number)
	)`,

	`CREATE TABLE IF NOT EXISTS reading_history (
		user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		date          TIMESTAMPTZ NOT NULL,
		book_name     VARCHAR(255) NOT NULL,
		start_chapter INTEGER NOT NULL,
		start_verse   INTEGER NOT NULL,
		end_chapter   INTEGER NOT NULL,
		end_verse     INTEGER NOT NULL,
		verses_read   INTEGER NOT NULL,
		PRIMARY KEY (user_id, seq)
	)`,
}

// Migrate ensures all progress tables exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
