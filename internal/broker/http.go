// ABOUTME: HTTP surface of the broker: publish endpoint and websocket connect
// ABOUTME: API key guards publishing, bearer JWT guards subscribing

package broker

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PublishRequest is the body of a publish call.
type PublishRequest struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// PublishResponse reports how many subscribers received the payload.
type PublishResponse struct {
	Delivered int `json:"delivered"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from arbitrary origins; access control is
	// the connect token, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler returns the broker's HTTP mux with the publish and websocket
// connect endpoints.
func (b *Broker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/publish", b.handlePublish)
	mux.HandleFunc("GET /connection/websocket", b.handleConnect)
	return mux
}

func (b *Broker) handlePublish(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if b.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(b.apiKey)) != 1 {
		http.Error(w, "invalid API key", http.StatusForbidden)
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Channel == "" || len(req.Data) == 0 {
		http.Error(w, "channel and data are required", http.StatusBadRequest)
		return
	}

	delivered := b.Publish(req.Channel, req.Data)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PublishResponse{Delivered: delivered})
}

func (b *Broker) handleConnect(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	subject, err := b.verifier.Verify(token)
	if err != nil {
		b.logger.Warn("rejected websocket connect", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s := &session{
		id:      uuid.NewString(),
		broker:  b,
		conn:    conn,
		subject: subject,
		send:    make(chan []byte, sendBufferSize),
	}
	b.logger.Info("subscriber connected",
		"session_id", s.id, "subject", subject, "remote_addr", conn.RemoteAddr())
	go s.writePump()
	go s.readPump()
}

// bearerToken extracts the token from the Authorization header, with a
// query parameter fallback for clients that cannot set headers on
// websocket requests.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
