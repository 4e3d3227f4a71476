// ABOUTME: Generation provider abstraction producing ordered text chunk streams
// ABOUTME: Defines Provider, Stream, and Event types plus provider selection

package engine

import (
	"context"
	"fmt"
)

// Role identifies the author of an input message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a turn's input history.
type Message struct {
	Role    Role
	Content string
}

// Request describes one generation call.
type Request struct {
	Messages        []Message
	Model           string // overrides the provider default when set
	MaxOutputTokens int
}

// EventType classifies a stream event from a provider.
type EventType int

const (
	// EventTextDelta carries one incremental text chunk.
	EventTextDelta EventType = iota
	// EventDone marks successful completion of the generation.
	EventDone
	// EventError carries a generation failure.
	EventError
)

// Event is one provider stream event.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Stream yields generation events in order. Recv blocks until the next
// event is available and returns io.EOF after the stream ends.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider produces a response stream for a generation request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Options configure provider construction.
type Options struct {
	Provider string
	Model    string
	APIKey   string
}

// New constructs the configured provider.
func New(opts Options) (Provider, error) {
	switch opts.Provider {
	case "anthropic":
		return NewAnthropicProvider(opts.APIKey, opts.Model), nil
	case "openai":
		return NewOpenAIProvider(opts.APIKey, opts.Model), nil
	case "scripted":
		// Canned responses, used for demos and smoke tests.
		return NewScriptedProvider("scripted").
			AddTextResponse("Hello! This is a scripted response."), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", opts.Provider)
	}
}
