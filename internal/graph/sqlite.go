package graph

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"studyroom/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	max_members INTEGER NOT NULL,
	is_private  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS memberships (
	user_id   TEXT NOT NULL,
	room_id   TEXT NOT NULL,
	joined_at TIMESTAMP NOT NULL,
	left_at   TIMESTAMP,
	PRIMARY KEY (user_id, room_id)
);

CREATE TABLE IF NOT EXISTS interactions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   TEXT NOT NULL,
	room_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_room ON interactions(room_id, occurred_at);
`

// SQLiteSink persists the mirror into a local SQLite database. The
// recorder's single worker is the only writer, which suits SQLite's
// single-writer constraint.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens the database at path and applies the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply graph schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// RoomCreated upserts the room row.
func (s *SQLiteSink) RoomCreated(roomID string, room *types.Room, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO rooms (id, name, description, max_members, is_private, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description
	`, roomID, room.Name, room.Description, room.MaxMembers, boolToInt(room.Private), at)
	if err != nil {
		return fmt.Errorf("failed to record room creation: %w", err)
	}
	return nil
}

// Join upserts the membership row, clearing any previous departure.
func (s *SQLiteSink) Join(userID, roomID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO memberships (user_id, room_id, joined_at, left_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(user_id, room_id) DO UPDATE SET joined_at=excluded.joined_at, left_at=NULL
	`, userID, roomID, at)
	if err != nil {
		return fmt.Errorf("failed to record join: %w", err)
	}
	return nil
}

// Leave marks the membership row as departed.
func (s *SQLiteSink) Leave(userID, roomID string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE memberships SET left_at = ? WHERE user_id = ? AND room_id = ?
	`, at, userID, roomID)
	if err != nil {
		return fmt.Errorf("failed to record leave: %w", err)
	}
	return nil
}

// Interaction appends an interaction row.
func (s *SQLiteSink) Interaction(userID, roomID, kind string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO interactions (user_id, room_id, kind, occurred_at)
		VALUES (?, ?, ?, ?)
	`, userID, roomID, kind, at)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
