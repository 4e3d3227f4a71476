// ABOUTME: Channel naming convention and per-turn message identifier generation
// ABOUTME: Pure functions mapping conversation ids to broker channels

package wire

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	// channelPrefix namespaces all conversation channels on the broker.
	channelPrefix = "chat:"

	// DefaultConversationID is used when a client omits the conversation id.
	DefaultConversationID = "default"
)

// ChannelFor maps a conversation id to its broker channel name.
// Distinct conversation ids always map to distinct channels.
func ChannelFor(conversationID string) string {
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	return channelPrefix + conversationID
}

// NewMessageID generates a unique identifier for one turn.
// Construction is a coarse millisecond timestamp plus a random suffix;
// the suffix makes collisions within a conversation's active window
// vanishingly unlikely (two turns sharing an id would merge streams).
func NewMessageID() string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand never fails on supported platforms
		panic("wire: reading random bytes: " + err.Error())
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(suffix)
}
