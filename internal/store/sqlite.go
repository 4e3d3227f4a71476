// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides turn persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
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

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
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
		CREATE TABLE IF NOT EXISTS turns (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			channel         TEXT NOT NULL,
			prompt          TEXT NOT NULL,
			status          TEXT NOT NULL,
			response        TEXT NOT NULL DEFAULT '',
			error           TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			CHECK (status IN ('streaming', 'done', 'errored'))
		);

		CREATE INDEX IF NOT EXISTS idx_turns_conversation
			ON turns(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateTurn inserts a new turn with status streaming. If a turn with
// the same message ID already exists, it returns ErrDuplicateTurn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, rec *TurnRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusStreaming
	}

	query := `
		INSERT INTO turns (message_id, conversation_id, channel, prompt, status, response, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.MessageID,
		rec.ConversationID,
		rec.Channel,
		rec.Prompt,
		rec.Status,
		rec.Response,
		rec.Error,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTurn
		}
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// CompleteTurn marks the turn done and stores the full response text.
func (s *SQLiteStore) CompleteTurn(ctx context.Context, messageID, response string) error {
	return s.settle(ctx, messageID, StatusDone, response, "")
}

// FailTurn marks the turn errored and stores the failure detail.
func (s *SQLiteStore) FailTurn(ctx context.Context, messageID, detail string) error {
	return s.settle(ctx, messageID, StatusErrored, "", detail)
}

func (s *SQLiteStore) settle(ctx context.Context, messageID, status, response, detail string) error {
	query := `
		UPDATE turns
		SET status = ?, response = ?, error = ?, updated_at = ?
		WHERE message_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		status,
		response,
		detail,
		time.Now().UTC().Format(time.RFC3339Nano),
		messageID,
	)
	if err != nil {
		return fmt.Errorf("updating turn: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTurn returns the turn for messageID or ErrNotFound.
func (s *SQLiteStore) GetTurn(ctx context.Context, messageID string) (*TurnRecord, error) {
	query := `
		SELECT message_id, conversation_id, channel, prompt, status, response, error, created_at, updated_at
		FROM turns
		WHERE message_id = ?
	`

	rec, err := scanTurn(s.db.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying turn: %w", err)
	}
	return rec, nil
}

// ListTurns returns the most recent turns for a conversation, newest
// first, up to limit.
func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string, limit int) ([]*TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT message_id, conversation_id, channel, prompt, status, response, error, created_at, updated_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*TurnRecord, error) {
	var rec TurnRecord
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.MessageID,
		&rec.ConversationID,
		&rec.Channel,
		&rec.Prompt,
		&rec.Status,
		&rec.Response,
		&rec.Error,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}
