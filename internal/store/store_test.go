// ABOUTME: Tests for the SQLite and in-memory turn stores
// ABOUTME: Runs the same suite against both implementations

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestCreateAndGetTurn(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := &TurnRecord{
				MessageID:      "m1",
				ConversationID: "conv-1",
				Channel:        "chat:conv-1",
				Prompt:         "hello",
			}
			require.NoError(t, s.CreateTurn(t.Context(), rec))

			got, err := s.GetTurn(t.Context(), "m1")
			require.NoError(t, err)
			assert.Equal(t, "conv-1", got.ConversationID)
			assert.Equal(t, "chat:conv-1", got.Channel)
			assert.Equal(t, "hello", got.Prompt)
			assert.Equal(t, StatusStreaming, got.Status)
			assert.False(t, got.CreatedAt.IsZero())
		})
	}
}

func TestCreateTurnDuplicate(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := &TurnRecord{MessageID: "m1", ConversationID: "c", Channel: "chat:c", Prompt: "p"}
			require.NoError(t, s.CreateTurn(t.Context(), rec))

			err := s.CreateTurn(t.Context(), &TurnRecord{MessageID: "m1", ConversationID: "c", Channel: "chat:c", Prompt: "q"})
			assert.ErrorIs(t, err, ErrDuplicateTurn)
		})
	}
}

func TestCompleteTurn(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := &TurnRecord{MessageID: "m1", ConversationID: "c", Channel: "chat:c", Prompt: "p"}
			require.NoError(t, s.CreateTurn(t.Context(), rec))

			require.NoError(t, s.CompleteTurn(t.Context(), "m1", "the full response"))

			got, err := s.GetTurn(t.Context(), "m1")
			require.NoError(t, err)
			assert.Equal(t, StatusDone, got.Status)
			assert.Equal(t, "the full response", got.Response)
			assert.Empty(t, got.Error)
		})
	}
}

func TestFailTurn(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := &TurnRecord{MessageID: "m1", ConversationID: "c", Channel: "chat:c", Prompt: "p"}
			require.NoError(t, s.CreateTurn(t.Context(), rec))

			require.NoError(t, s.FailTurn(t.Context(), "m1", "backend unavailable"))

			got, err := s.GetTurn(t.Context(), "m1")
			require.NoError(t, err)
			assert.Equal(t, StatusErrored, got.Status)
			assert.Equal(t, "backend unavailable", got.Error)
			assert.Empty(t, got.Response)
		})
	}
}

func TestSettleUnknownTurn(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.CompleteTurn(t.Context(), "missing", "x"), ErrNotFound)
			assert.ErrorIs(t, s.FailTurn(t.Context(), "missing", "x"), ErrNotFound)
		})
	}
}

func TestGetTurnNotFound(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetTurn(t.Context(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListTurnsNewestFirst(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC().Add(-time.Minute)
			for i, id := range []string{"m1", "m2", "m3"} {
				rec := &TurnRecord{
					MessageID:      id,
					ConversationID: "conv",
					Channel:        "chat:conv",
					Prompt:         "p",
					CreatedAt:      base.Add(time.Duration(i) * time.Second),
				}
				require.NoError(t, s.CreateTurn(t.Context(), rec))
			}
			require.NoError(t, s.CreateTurn(t.Context(), &TurnRecord{
				MessageID: "other", ConversationID: "another", Channel: "chat:another", Prompt: "p",
			}))

			turns, err := s.ListTurns(t.Context(), "conv", 2)
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, "m3", turns[0].MessageID)
			assert.Equal(t, "m2", turns[1].MessageID)
		})
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTurn(t.Context(), &TurnRecord{
		MessageID: "m1", ConversationID: "c", Channel: "chat:c", Prompt: "p",
	}))
	require.NoError(t, s.CompleteTurn(t.Context(), "m1", "done"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetTurn(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, "done", got.Response)
}
