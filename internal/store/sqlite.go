// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conversation rows are CAS-updated on version; slots serialize as JSON

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT NOT NULL,
			channel TEXT NOT NULL,
			external_user_id TEXT NOT NULL,
			vertical TEXT NOT NULL DEFAULT '',
			current_state TEXT NOT NULL,
			slots TEXT NOT NULL DEFAULT '{}',
			invalid_inputs INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (channel, external_user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated_at
			ON conversations(updated_at);

		CREATE TABLE IF NOT EXISTS vertical_preferences (
			channel TEXT NOT NULL,
			external_user_id TEXT NOT NULL,
			vertical TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (channel, external_user_id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Get retrieves the conversation for the identity.
func (s *SQLiteStore) Get(ctx context.Context, id Identity) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vertical, current_state, slots, invalid_inputs, version, created_at, updated_at
		FROM conversations
		WHERE channel = ? AND external_user_id = ?`,
		id.Channel, id.ExternalUserID)

	var c Conversation
	var slotsJSON string
	err := row.Scan(&c.ID, &c.Vertical, &c.CurrentState, &slotsJSON,
		&c.InvalidInputs, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	c.Identity = id
	if err := json.Unmarshal([]byte(slotsJSON), &c.Slots); err != nil {
		return nil, fmt.Errorf("decoding slots: %w", err)
	}
	if c.Slots == nil {
		c.Slots = make(map[string]string)
	}
	return &c, nil
}

// CompareAndSwap persists conv if the stored version matches expectedVersion.
// expectedVersion 0 inserts a fresh row; a unique-constraint failure on insert
// means another writer created the row first and is reported as a conflict.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, conv *Conversation, expectedVersion int64) error {
	slotsJSON, err := json.Marshal(conv.Slots)
	if err != nil {
		return fmt.Errorf("encoding slots: %w", err)
	}

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations
				(id, channel, external_user_id, vertical, current_state, slots, invalid_inputs, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.Identity.Channel, conv.Identity.ExternalUserID,
			conv.Vertical, conv.CurrentState, string(slotsJSON),
			conv.InvalidInputs, conv.Version, conv.CreatedAt, conv.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrVersionConflict
			}
			return fmt.Errorf("inserting conversation: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET vertical = ?, current_state = ?, slots = ?, invalid_inputs = ?, version = ?, updated_at = ?
		WHERE channel = ? AND external_user_id = ? AND version = ?`,
		conv.Vertical, conv.CurrentState, string(slotsJSON),
		conv.InvalidInputs, conv.Version, conv.UpdatedAt,
		conv.Identity.Channel, conv.Identity.ExternalUserID, expectedVersion)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete removes the conversation for the identity.
func (s *SQLiteStore) Delete(ctx context.Context, id Identity) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE channel = ? AND external_user_id = ?`,
		id.Channel, id.ExternalUserID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// DeleteIdle removes conversations not updated since cutoff.
func (s *SQLiteStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting idle conversations: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete result: %w", err)
	}
	return int(affected), nil
}

// GetPreference returns the identity's last-used vertical.
func (s *SQLiteStore) GetPreference(ctx context.Context, id Identity) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT vertical FROM vertical_preferences WHERE channel = ? AND external_user_id = ?`,
		id.Channel, id.ExternalUserID)

	var vertical string
	err := row.Scan(&vertical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying preference: %w", err)
	}
	return vertical, nil
}

// SetPreference records the identity's last-used vertical.
func (s *SQLiteStore) SetPreference(ctx context.Context, id Identity, vertical string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vertical_preferences (channel, external_user_id, vertical, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (channel, external_user_id) DO UPDATE SET
			vertical = excluded.vertical,
			updated_at = excluded.updated_at`,
		id.Channel, id.ExternalUserID, vertical, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving preference: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
