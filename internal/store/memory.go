// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors the SQLite semantics without touching disk

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. It is used by tests and by
// deployments that do not need persistence.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string]*TurnRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string]*TurnRecord)}
}

func (m *MemoryStore) CreateTurn(_ context.Context, rec *TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.turns[rec.MessageID]; exists {
		return ErrDuplicateTurn
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusStreaming
	}

	clone := *rec
	m.turns[rec.MessageID] = &clone
	return nil
}

func (m *MemoryStore) CompleteTurn(_ context.Context, messageID, response string) error {
	return m.settle(messageID, StatusDone, response, "")
}

func (m *MemoryStore) FailTurn(_ context.Context, messageID, detail string) error {
	return m.settle(messageID, StatusErrored, "", detail)
}

func (m *MemoryStore) settle(messageID, status, response, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.turns[messageID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.Response = response
	rec.Error = detail
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) GetTurn(_ context.Context, messageID string) (*TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.turns[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *MemoryStore) ListTurns(_ context.Context, conversationID string, limit int) ([]*TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var turns []*TurnRecord
	for _, rec := range m.turns {
		if rec.ConversationID == conversationID {
			clone := *rec
			turns = append(turns, &clone)
		}
	}
	sort.Slice(turns, func(i, j int) bool {
		return turns[i].CreatedAt.After(turns[j].CreatedAt)
	})
	if len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
