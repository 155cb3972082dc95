// Package sqlite persists review sessions in a local SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vportnov/scriptrate"
)

// Store keeps one serialized session state per document id.
type Store struct {
	db *sql.DB
}

var _ scriptrate.SessionStore = (*Store)(nil)

// NewStore opens (and if needed creates) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// Serialized access; the review client is single-user.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			doc_id     TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the saved state for a document, or nil when none exists.
func (s *Store) Load(docID string) (*scriptrate.SessionState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE doc_id = ?`, docID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", docID, err)
	}
	var state scriptrate.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", docID, err)
	}
	return &state, nil
}

// Save upserts the state for a document.
func (s *Store) Save(docID string, state *scriptrate.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", docID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (doc_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, docID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", docID, err)
	}
	return nil
}

// Delete removes the saved state for a document. Deleting an unknown
// document is not an error.
func (s *Store) Delete(docID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("delete session %s: %w", docID, err)
	}
	return nil
}
