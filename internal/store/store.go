// Package store persists the interaction log backed by SQLite. Every
// processed turn leaves one row: when, which chat, what the funnel
// decided. Conversations themselves are not stored.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	intent     TEXT NOT NULL,
	product    TEXT NOT NULL DEFAULT '',
	stage      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_chat ON interactions(chat_id, occurred_at);
`

// Interaction is one logged turn.
type Interaction struct {
	ID         int64
	OccurredAt time.Time
	ChatID     string
	Intent     string
	Product    string
	Stage      string
}

// DB wraps the SQLite connection.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	slog.Info("interaction log opened", "path", path)
	return &DB{sql: sqlDB}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// LogInteraction appends one turn to the log.
func (db *DB) LogInteraction(ctx context.Context, it Interaction) error {
	if it.OccurredAt.IsZero() {
		it.OccurredAt = time.Now().UTC()
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO interactions (occurred_at, chat_id, intent, product, stage) VALUES (?, ?, ?, ?, ?)`,
		it.OccurredAt.UTC().Format(time.RFC3339Nano), it.ChatID, it.Intent, it.Product, it.Stage,
	)
	if err != nil {
		return fmt.Errorf("logging interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns the newest rows for a chat, most recent
// first, capped at limit.
func (db *DB) RecentInteractions(ctx context.Context, chatID string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, occurred_at, chat_id, intent, product, stage
		 FROM interactions WHERE chat_id = ?
		 ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var it Interaction
		var ts string
		if err := rows.Scan(&it.ID, &ts, &it.ChatID, &it.Intent, &it.Product, &it.Stage); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		if it.OccurredAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// IntentCounts aggregates how often each intent was seen, across all
// chats, for a quick funnel health read.
func (db *DB) IntentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT intent, COUNT(*) FROM interactions GROUP BY intent`)
	if err != nil {
		return nil, fmt.Errorf("counting intents: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var intent string
		var n int
		if err := rows.Scan(&intent, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[intent] = n
	}
	return counts, rows.Err()
}
