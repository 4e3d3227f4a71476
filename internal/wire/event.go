// ABOUTME: Stream event model and its wire codec for broker payloads
// ABOUTME: Decodes the wire-level done flag into an explicit event kind

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a stream event after decoding.
// The wire format collapses delta and done into one "text" payload
// distinguished by a flag; the flag is resolved here so the rest of the
// code only ever sees the explicit three-state model.
type Kind int

const (
	// KindDelta carries one incremental chunk of generated text.
	KindDelta Kind = iota
	// KindDone marks the end of a turn. Carries no content.
	KindDone
	// KindError terminates a turn with a failure message. A missing
	// MessageID means the error applies to every active turn on the
	// channel.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded stream event for a turn.
type Event struct {
	Kind      Kind
	MessageID string
	Content   string // delta text, empty for done
	Error     string // failure message, error events only
}

// Delta builds a delta event for one generated chunk.
func Delta(messageID, content string) Event {
	return Event{Kind: KindDelta, MessageID: messageID, Content: content}
}

// Done builds the terminal event for a successfully completed turn.
func Done(messageID string) Event {
	return Event{Kind: KindDone, MessageID: messageID}
}

// Errorf builds an error event for a failed turn. messageID may be empty
// for a channel-wide failure.
func Errorf(messageID, format string, args ...any) Event {
	return Event{Kind: KindError, MessageID: messageID, Error: fmt.Sprintf(format, args...)}
}

// payload is the wire envelope published on a conversation channel.
type payload struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Done      bool   `json:"done"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrUnknownEventType is returned when a payload's type field is not recognized.
var ErrUnknownEventType = errors.New("unknown event type")

// Encode serializes an event into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	var p payload
	switch ev.Kind {
	case KindDelta:
		p = payload{Type: "text", Content: ev.Content, Done: false, MessageID: ev.MessageID}
	case KindDone:
		p = payload{Type: "text", Done: true, MessageID: ev.MessageID}
	case KindError:
		p = payload{Type: "error", Error: ev.Error, MessageID: ev.MessageID}
	default:
		return nil, fmt.Errorf("encoding event: %w: %d", ErrUnknownEventType, ev.Kind)
	}
	return json.Marshal(p)
}

// Decode parses a wire envelope into an event, resolving the done flag.
func Decode(data []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}

	switch p.Type {
	case "text":
		if p.Done {
			return Done(p.MessageID), nil
		}
		return Delta(p.MessageID, p.Content), nil
	case "error":
		return Event{Kind: KindError, MessageID: p.MessageID, Error: p.Error}, nil
	default:
		return Event{}, fmt.Errorf("decoding event: %w: %q", ErrUnknownEventType, p.Type)
	}
}

// InputMessage is one entry of a turn's input history as submitted to the
// turn endpoint. Content may be given directly or as text parts.
type InputMessage struct {
	Role    string      `json:"role"`
	Content string      `json:"content,omitempty"`
	Parts   []InputPart `json:"parts,omitempty"`
}

// InputPart is one typed fragment of an input message.
type InputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text flattens an input message to plain text, joining text parts.
func (m InputMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
