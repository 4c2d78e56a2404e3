package database

import (
	"database/sql"
	"fmt"
)

// Schema is the full DDL for a fresh database. Statements are idempotent so
// startup can run them unconditionally.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	layout      TEXT NOT NULL DEFAULT '',
	access_code TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS game_results (
	id          TEXT PRIMARY KEY,
	game_id     TEXT NOT NULL,
	room_id     TEXT NOT NULL,
	game_type   TEXT NOT NULL,
	winner      TEXT NOT NULL,
	game_number INTEGER NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at);
CREATE INDEX IF NOT EXISTS idx_game_results_room ON game_results(room_id);
CREATE INDEX IF NOT EXISTS idx_game_results_finished ON game_results(finished_at);
`

// EnsureSchema creates the tables and indexes if they are missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ValidateTablesExist verifies the schema was applied, used by health tooling
// and tests.
func ValidateTablesExist(db *sql.DB) error {
	for _, table := range []string{"rooms", "game_results"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s does not exist", table)
		}
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
	}
	return nil
}
