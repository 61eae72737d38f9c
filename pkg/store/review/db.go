package review

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const ReviewsSchema = `
	CREATE TABLE IF NOT EXISTS reviews (
		id          INTEGER PRIMARY KEY,
		status      TEXT NOT NULL,
		issues      TEXT NOT NULL,
		fixes       TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	);
`

var bootQueries = []string{
	ReviewsSchema,
}

type Settings struct {
	Path string
}

// NewDB opens (creating if needed) the review archive and applies the
// schema. The busy timeout covers concurrent upserts from parallel runs.
func NewDB(settings Settings) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", settings.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	for _, query := range bootQueries {
		if _, err := db.Exec(query); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}
