// ABOUTME: MessageStream reconstructs one turn's framed chunk sequence
// ABOUTME: Filters subscription events by message id with idempotent termination

package client

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chatrelay/chatrelay/internal/wire"
)

// ErrCanceled is returned by Recv after the stream is canceled.
var ErrCanceled = errors.New("stream canceled")

// TurnError is the terminal failure of a streamed turn, carrying the
// error event's message.
type TurnError struct {
	MessageID string
	Message   string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s failed: %s", e.MessageID, e.Message)
}

// ChunkType frames the reconstructed sequence.
type ChunkType int

const (
	// ChunkStart opens the sequence. Emitted locally and immediately,
	// before any broker event can arrive.
	ChunkStart ChunkType = iota
	// ChunkDelta carries one incremental text piece.
	ChunkDelta
	// ChunkEnd closes a successfully completed sequence.
	ChunkEnd
)

func (t ChunkType) String() string {
	switch t {
	case ChunkStart:
		return "start"
	case ChunkDelta:
		return "delta"
	case ChunkEnd:
		return "end"
	default:
		return fmt.Sprintf("chunk(%d)", int(t))
	}
}

// Chunk is one element of a turn's reconstructed sequence.
type Chunk struct {
	Type      ChunkType
	MessageID string
	Text      string
}

// MessageStream exposes one in-flight turn as an ordered, cancellable
// chunk sequence: start, zero or more deltas, then either end (Recv
// returns io.EOF afterwards) or a terminal error. Termination is
// idempotent; late events for the same message id are ignored.
type MessageStream struct {
	sub        *Subscription
	messageID  string
	chunks     chan Chunk
	done       chan struct{}
	terminate  sync.Once
	listenerID int
	err        error // written once before done closes

	mu         sync.Mutex
	terminated bool
}

// NewMessageStream registers a listener on sub filtered to messageID
// and returns the reconstructed stream. The start chunk is queued
// synchronously before any network event can be observed.
func NewMessageStream(sub *Subscription, messageID string) *MessageStream {
	s := &MessageStream{
		sub:       sub,
		messageID: messageID,
		chunks:    make(chan Chunk, 64),
		done:      make(chan struct{}),
	}

	s.chunks <- Chunk{Type: ChunkStart, MessageID: messageID}
	s.listenerID = sub.addListener(s.onEvent, s.Cancel)
	return s
}

// onEvent runs on the connection read loop, serialized per
// subscription.
func (s *MessageStream) onEvent(ev wire.Event) {
	channelWideError := ev.Kind == wire.KindError && ev.MessageID == ""
	if ev.MessageID != s.messageID && !channelWideError {
		return
	}

	switch ev.Kind {
	case wire.KindDelta:
		s.push(Chunk{Type: ChunkDelta, MessageID: s.messageID, Text: ev.Content})

	case wire.KindDone:
		if s.push(Chunk{Type: ChunkEnd, MessageID: s.messageID}) {
			s.finish(nil)
		}

	case wire.KindError:
		s.finish(&TurnError{MessageID: s.messageID, Message: ev.Error})
	}
}

// push queues a chunk unless the stream has already terminated. The
// flag check keeps a dispatch racing with Cancel from queuing a chunk
// after termination; anything that still slips into the buffer during
// the race is discarded by Recv on the canceled path.
func (s *MessageStream) push(c Chunk) bool {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.chunks <- c:
		return true
	case <-s.done:
		return false
	}
}

// finish terminates the stream exactly once and deregisters the
// listener. Later calls, including late done events after Cancel, are
// no-ops.
func (s *MessageStream) finish(err error) {
	s.terminate.Do(func() {
		s.mu.Lock()
		s.terminated = true
		s.mu.Unlock()
		s.err = err
		s.sub.RemoveListener(s.listenerID)
		close(s.done)
	})
}

// Recv returns the next chunk. On done or error, buffered chunks are
// drained before the terminal state is reported, so the consumer sees
// the full framed sequence; after Cancel anything still queued is
// discarded. After a successful end it returns io.EOF; after a failure
// it keeps returning the same error.
func (s *MessageStream) Recv() (Chunk, error) {
	select {
	case <-s.done:
		// A canceled consumer has walked away; never hand it a chunk
		// that raced in around the cancellation.
		if errors.Is(s.err, ErrCanceled) {
			return Chunk{}, s.err
		}
	default:
	}

	select {
	case c := <-s.chunks:
		return c, nil
	default:
	}

	select {
	case c := <-s.chunks:
		return c, nil
	case <-s.done:
		select {
		case c := <-s.chunks:
			return c, nil
		default:
		}
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	}
}

// Cancel abandons the turn locally. The listener is removed, no end
// chunk is emitted, and Recv reports ErrCanceled, discarding any
// undelivered chunks. The backend keeps generating; cancellation does
// not propagate across the broker.
func (s *MessageStream) Cancel() {
	s.finish(ErrCanceled)
}

// Text drains the stream to completion and returns the concatenated
// delta text. It is a convenience for callers that do not need
// incremental consumption.
func (s *MessageStream) Text() (string, error) {
	var b []byte
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(b), nil
		}
		if err != nil {
			return string(b), err
		}
		if c.Type == ChunkDelta {
			b = append(b, c.Text...)
		}
	}
}
