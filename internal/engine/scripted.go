// ABOUTME: Scripted provider returning canned responses for tests and demos
// ABOUTME: Emits configured text in small chunks to simulate real streaming

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScriptedTurn is one canned response from the scripted provider.
type ScriptedTurn struct {
	Text  string        // emitted in small chunks
	Delay time.Duration // optional delay before responding
	Error error         // returned instead of text when set
}

// ScriptedProvider returns pre-configured turns in order and records
// every request it receives. It is the provider used by tests and by
// the "scripted" engine configuration.
type ScriptedProvider struct {
	name      string
	turns     []ScriptedTurn
	turnIndex int
	Requests  []Request
	mu        sync.Mutex
}

// NewScriptedProvider creates a scripted provider with the given name.
func NewScriptedProvider(name string) *ScriptedProvider {
	return &ScriptedProvider{name: name}
}

func (s *ScriptedProvider) Name() string {
	return s.name
}

// AddTurn appends a turn and returns the provider for chaining.
func (s *ScriptedProvider) AddTurn(t ScriptedTurn) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return s
}

// AddTextResponse appends a plain text turn.
func (s *ScriptedProvider) AddTextResponse(text string) *ScriptedProvider {
	return s.AddTurn(ScriptedTurn{Text: text})
}

// AddError appends a turn that fails with err.
func (s *ScriptedProvider) AddError(err error) *ScriptedProvider {
	return s.AddTurn(ScriptedTurn{Error: err})
}

func (s *ScriptedProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)

	if s.turnIndex >= len(s.turns) {
		s.mu.Unlock()
		return nil, fmt.Errorf("scripted provider: no more turns configured (turn %d of %d)", s.turnIndex, len(s.turns))
	}

	turn := s.turns[s.turnIndex]
	s.turnIndex++
	s.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}

		if turn.Error != nil {
			return turn.Error
		}

		for _, chunk := range chunkText(turn.Text, 10) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- Event{Type: EventTextDelta, Text: chunk}:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- Event{Type: EventDone}:
		}
		return nil
	}), nil
}

// chunkText splits text into rune-safe chunks of at most size runes.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
