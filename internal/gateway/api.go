// ABOUTME: HTTP API handlers for turn submission, credentials, and turn lookup
// ABOUTME: Accepts a turn, responds immediately, and drives generation in background

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chatrelay/chatrelay/internal/engine"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/wire"
)

// TurnRequest is the body of POST /turn.
type TurnRequest struct {
	ID       string              `json:"id"` // conversation id, defaulted when empty
	Messages []wire.InputMessage `json:"messages"`
}

// TurnResponse tells the client where to listen for the turn's events.
type TurnResponse struct {
	Channel   string `json:"channel"`
	MessageID string `json:"messageId"`
}

// CredentialResponse is the body of GET /credential.
type CredentialResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleTurn accepts a turn, assigns its channel and message id, and
// responds before generation starts. Deltas flow through the broker,
// never through this response.
func (g *Gateway) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	messages, prompt, err := convertMessages(req.Messages)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conversationID := req.ID
	if conversationID == "" {
		conversationID = wire.DefaultConversationID
	}
	channel := wire.ChannelFor(conversationID)
	messageID := wire.NewMessageID()

	rec := &store.TurnRecord{
		MessageID:      messageID,
		ConversationID: conversationID,
		Channel:        channel,
		Prompt:         prompt,
	}
	if err := g.store.CreateTurn(r.Context(), rec); err != nil {
		g.logger.Error("recording turn", "error", err, "message_id", messageID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	engineReq := engine.Request{
		Messages:        messages,
		MaxOutputTokens: g.config.Engine.MaxOutputTokens,
	}
	// Generation outlives this request. Cancellation is not propagated
	// from the client connection; the turn runs to its terminal event.
	go g.runTurn(context.Background(), channel, messageID, engineReq)

	g.logger.Info("turn accepted",
		"conversation_id", conversationID,
		"message_id", messageID,
		"messages", len(req.Messages),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TurnResponse{Channel: channel, MessageID: messageID})
}

// runTurn starts the generation stream and bridges it onto the channel.
// A stream that fails to start still produces a terminal error event.
func (g *Gateway) runTurn(ctx context.Context, channel, messageID string, req engine.Request) {
	stream, err := g.provider.Stream(ctx, req)
	if err != nil {
		g.logger.Error("starting generation", "error", err, "message_id", messageID)
		if err := g.store.FailTurn(ctx, messageID, err.Error()); err != nil {
			g.logger.Warn("recording failed turn", "error", err)
		}
		ev := wire.Errorf(messageID, "starting generation: %s", err.Error())
		if err := g.publisher.Publish(ctx, channel, ev); err != nil {
			g.logger.Warn("publishing error event", "error", err)
		}
		return
	}

	if err := g.bridge.Run(ctx, channel, messageID, stream); err != nil {
		g.logger.Error("turn ended with error", "error", err, "message_id", messageID)
	}
}

// handleCredential mints a short-lived broker connect token for the
// requesting identity.
func (g *Gateway) handleCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = "anonymous"
	}

	token, err := g.minter.Mint(userID, g.config.Auth.TokenTTL)
	if err != nil {
		g.logger.Error("minting credential", "error", err, "user_id", userID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(CredentialResponse{Success: false, Error: "credential minting failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CredentialResponse{Success: true, Token: token})
}

// handleGetTurn returns the stored record for one turn.
func (g *Gateway) handleGetTurn(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageID")

	rec, err := g.store.GetTurn(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "turn not found", http.StatusNotFound)
			return
		}
		g.logger.Error("loading turn", "error", err, "message_id", messageID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"messageId":      rec.MessageID,
		"conversationId": rec.ConversationID,
		"channel":        rec.Channel,
		"status":         rec.Status,
		"response":       rec.Response,
		"error":          rec.Error,
		"createdAt":      rec.CreatedAt,
		"updatedAt":      rec.UpdatedAt,
	})
}

// convertMessages maps the wire input history onto engine messages and
// extracts the latest user text as the stored prompt.
func convertMessages(input []wire.InputMessage) ([]engine.Message, string, error) {
	if len(input) == 0 {
		return nil, "", errors.New("messages are required")
	}

	messages := make([]engine.Message, 0, len(input))
	var prompt string
	for _, msg := range input {
		text := strings.TrimSpace(msg.Text())
		if text == "" {
			continue
		}

		var role engine.Role
		switch msg.Role {
		case "system":
			role = engine.RoleSystem
		case "user", "":
			role = engine.RoleUser
		case "assistant":
			role = engine.RoleAssistant
		default:
			return nil, "", errors.New("unknown message role " + msg.Role)
		}

		if role == engine.RoleUser {
			prompt = text
		}
		messages = append(messages, engine.Message{Role: role, Content: text})
	}

	if len(messages) == 0 {
		return nil, "", errors.New("messages contain no text")
	}
	return messages, prompt, nil
}
