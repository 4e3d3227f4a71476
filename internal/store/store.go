// ABOUTME: Store interface and data types for turn persistence
// ABOUTME: Defines TurnRecord and the status lifecycle for generation turns

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTurn is returned when trying to create a turn whose
// message ID already exists
var ErrDuplicateTurn = errors.New("turn already exists")

// Turn status constants. A turn starts streaming and settles into
// exactly one terminal state.
const (
	StatusStreaming = "streaming"
	StatusDone      = "done"
	StatusErrored   = "errored"
)

// TurnRecord is the persisted record of one generation turn.
type TurnRecord struct {
	MessageID      string
	ConversationID string
	Channel        string
	Prompt         string
	Status         string
	Response       string // accumulated text, set when the turn completes
	Error          string // failure detail, set when the turn errors
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists turn records.
type Store interface {
	// CreateTurn inserts a new record with status streaming.
	CreateTurn(ctx context.Context, rec *TurnRecord) error

	// CompleteTurn marks the turn done and stores the full response text.
	CompleteTurn(ctx context.Context, messageID, response string) error

	// FailTurn marks the turn errored and stores the failure detail.
	FailTurn(ctx context.Context, messageID, detail string) error

	// GetTurn returns the record for messageID or ErrNotFound.
	GetTurn(ctx context.Context, messageID string) (*TurnRecord, error)

	// ListTurns returns the most recent turns for a conversation,
	// newest first, up to limit.
	ListTurns(ctx context.Context, conversationID string, limit int) ([]*TurnRecord, error)

	// Close releases underlying resources.
	Close() error
}
