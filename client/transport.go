// ABOUTME: Transport adapter turning a chat submission into a consumable stream
// ABOUTME: Subscribes first, POSTs the turn, then hands off to the reconstructor

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/wire"
)

// ErrTurnSubmission wraps POST /turn failures. No stream exists and no
// listener is registered when it is returned.
var ErrTurnSubmission = errors.New("turn submission failed")

// Transport presents the send-a-turn-get-a-stream shape a chat UI
// expects. It is safe for concurrent use; each call produces an
// independent stream.
type Transport struct {
	client *Client
}

// NewTransport wraps a Client.
func NewTransport(c *Client) *Transport {
	return &Transport{client: c}
}

type turnRequest struct {
	ID       string              `json:"id,omitempty"`
	Messages []wire.InputMessage `json:"messages"`
}

type turnResponse struct {
	Channel   string `json:"channel"`
	MessageID string `json:"messageId"`
}

// SendMessages submits the conversation's message history (ending in
// the new user turn) and returns the reconstructed response stream.
// The subscription is established before the POST, so no published
// event can be missed; a failed POST surfaces directly with no
// listener left behind. There are no retries at this layer.
func (t *Transport) SendMessages(ctx context.Context, conversationID string, messages []wire.InputMessage) (*MessageStream, error) {
	sub, err := t.client.EnsureSubscription(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(turnRequest{ID: conversationID, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrTurnSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.client.gatewayURL+"/turn", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTurnSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTurnSubmission, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTurnSubmission, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTurnSubmission, resp.StatusCode, respBody)
	}

	var tr turnResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTurnSubmission, err)
	}
	if tr.MessageID == "" {
		return nil, fmt.Errorf("%w: response missing messageId", ErrTurnSubmission)
	}

	return NewMessageStream(sub, tr.MessageID), nil
}
