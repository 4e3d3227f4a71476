// ABOUTME: Embedded pub/sub broker fanning published events out to websocket subscribers
// ABOUTME: Tracks per-channel session sets guarded by a read-write mutex

package broker

import (
	"log/slog"
	"sync"

	"github.com/chatrelay/chatrelay/internal/auth"
)

// Broker is an in-process pub/sub hub. Publishers push JSON payloads to
// named channels over HTTP; subscribers hold a websocket connection and
// pick the channels they want with subscribe commands.
type Broker struct {
	apiKey   string
	verifier auth.Verifier
	logger   *slog.Logger

	mu       sync.RWMutex
	channels map[string]map[*session]bool
	closed   bool
}

// New creates a broker. apiKey guards the publish endpoint, verifier
// guards websocket connects.
func New(apiKey string, verifier auth.Verifier, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		apiKey:   apiKey,
		verifier: verifier,
		logger:   logger.With("component", "broker"),
		channels: make(map[string]map[*session]bool),
	}
}

// Publish fans data out to every session subscribed to channel and
// returns the number of sessions the payload was queued for. A session
// with a full send buffer is disconnected rather than skipped: a gap
// in a delta stream would reassemble into silently truncated text, so
// a slow consumer must observe a dropped connection instead. Closing
// the conn makes the session's read pump exit and run the teardown.
func (b *Broker) Publish(channel string, data []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for s := range b.channels[channel] {
		select {
		case s.send <- pushMessage(channel, data):
			delivered++
		default:
			b.logger.Warn("subscriber send buffer full, disconnecting slow session",
				"channel", channel, "session_id", s.id)
			s.conn.Close()
		}
	}
	return delivered
}

func (b *Broker) subscribe(s *session, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if _, ok := b.channels[channel]; !ok {
		b.channels[channel] = make(map[*session]bool)
	}
	b.channels[channel][s] = true
	b.logger.Debug("session subscribed", "channel", channel, "session_id", s.id)
}

func (b *Broker) unsubscribe(s *session, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s, channel)
}

// dropSession removes s from every channel. Called when the session's
// read pump exits.
func (b *Broker) dropSession(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, sessions := range b.channels {
		if sessions[s] {
			b.removeLocked(s, channel)
		}
	}
}

func (b *Broker) removeLocked(s *session, channel string) {
	sessions, ok := b.channels[channel]
	if !ok || !sessions[s] {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(b.channels, channel)
	}
	b.logger.Debug("session unsubscribed", "channel", channel, "session_id", s.id)
}

// SubscriberCount reports how many sessions are subscribed to channel.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// Close disconnects all sessions and rejects future subscribes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[*session]bool)
	for _, sessions := range b.channels {
		for s := range sessions {
			if !seen[s] {
				seen[s] = true
				s.conn.Close()
			}
		}
	}
	b.channels = make(map[string]map[*session]bool)
}
