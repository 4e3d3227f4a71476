// ABOUTME: Per-connection websocket session with separate read and write pumps
// ABOUTME: Parses subscribe/unsubscribe commands and relays channel pushes

package broker

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum command size allowed from peer.
	sendBufferSize = 256                 // Buffer size for the send channel.
)

// Command is a client request on the websocket.
type Command struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// Push is a broker message delivered to a subscriber.
type Push struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func pushMessage(channel string, data []byte) []byte {
	msg, err := json.Marshal(Push{Channel: channel, Data: data})
	if err != nil {
		// data is raw JSON already validated at publish time
		return nil
	}
	return msg
}

type session struct {
	id      string
	broker  *Broker
	conn    *websocket.Conn
	subject string
	send    chan []byte
}

// readPump owns all reads on the connection. Commands are applied in
// arrival order; the pump exits on any read error and tears the
// session down.
func (s *session) readPump() {
	defer func() {
		s.broker.dropSession(s)
		close(s.send)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.broker.logger.Warn("websocket read error",
					"remote_addr", s.conn.RemoteAddr(), "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			s.broker.logger.Warn("malformed command, ignoring",
				"remote_addr", s.conn.RemoteAddr(), "error", err)
			continue
		}

		switch cmd.Action {
		case "subscribe":
			if cmd.Channel != "" {
				s.broker.subscribe(s, cmd.Channel)
			}
		case "unsubscribe":
			if cmd.Channel != "" {
				s.broker.unsubscribe(s, cmd.Channel)
			}
		default:
			s.broker.logger.Warn("unknown command action, ignoring",
				"remote_addr", s.conn.RemoteAddr(), "action", cmd.Action)
		}
	}
}

// writePump owns all writes on the connection, including pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
