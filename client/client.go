// ABOUTME: Broker client holding one websocket connection and per-conversation subscriptions
// ABOUTME: Lazily connects with a fetched credential and serializes event dispatch

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/chatrelay/chatrelay/internal/wire"
)

// Sentinel errors for the failure classes a caller can hit before any
// stream exists.
var (
	ErrCredentialFetch = errors.New("credential fetch failed")
	ErrConnect         = errors.New("broker connect failed")
	ErrClosed          = errors.New("client is closed")
)

// Options configure a Client.
type Options struct {
	// GatewayURL is the base URL of the chatrelay gateway, used for
	// credential fetches (and turn submission by the Transport).
	GatewayURL string

	// ConnectURL is the broker websocket endpoint. When empty it is
	// derived from GatewayURL (ws scheme, /connection/websocket path),
	// which matches the embedded broker layout.
	ConnectURL string

	// UserID identifies this client when fetching credentials.
	UserID string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Client owns one broker connection per process and multiplexes any
// number of per-conversation Subscriptions through it. The connection
// is established lazily on the first EnsureSubscription call. There is
// no reconnect: a dropped connection fails the session.
type Client struct {
	gatewayURL string
	connectURL string
	userID     string
	httpc      *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*Subscription
	closed  bool
	connErr error // sticky failure from the read loop
}

// New creates a client. It performs no network activity until the
// first subscription is requested.
func New(opts Options) (*Client, error) {
	if opts.GatewayURL == "" {
		return nil, errors.New("gateway URL is required")
	}

	connectURL := opts.ConnectURL
	if connectURL == "" {
		derived, err := deriveConnectURL(opts.GatewayURL)
		if err != nil {
			return nil, err
		}
		connectURL = derived
	}

	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userID := opts.UserID
	if userID == "" {
		userID = "anonymous"
	}

	return &Client{
		gatewayURL: strings.TrimSuffix(opts.GatewayURL, "/"),
		connectURL: connectURL,
		userID:     userID,
		httpc:      httpc,
		dialer:     dialer,
		logger:     logger.With("component", "client"),
		subs:       make(map[string]*Subscription),
	}, nil
}

func deriveConnectURL(gatewayURL string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("parsing gateway URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported gateway URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/connection/websocket"
	return u.String(), nil
}

// EnsureSubscription returns the Subscription for conversationID,
// creating it on first use. Concurrent calls for the same conversation
// collapse into one subscribe; a failed attempt caches nothing.
func (c *Client) EnsureSubscription(ctx context.Context, conversationID string) (*Subscription, error) {
	channel := wire.ChannelFor(conversationID)

	c.mu.Lock()
	if sub, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		return sub, nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.connErr != nil {
		err := c.connErr
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(channel, func() (any, error) {
		// Re-check: a previous flight may have created it.
		c.mu.Lock()
		if sub, ok := c.subs[channel]; ok {
			c.mu.Unlock()
			return sub, nil
		}
		c.mu.Unlock()

		if err := c.ensureConnected(ctx); err != nil {
			return nil, err
		}
		if err := c.writeCommand(command{Action: "subscribe", Channel: channel}); err != nil {
			return nil, fmt.Errorf("%w: subscribing to %s: %v", ErrConnect, channel, err)
		}

		sub := newSubscription(channel)
		c.mu.Lock()
		c.subs[channel] = sub
		c.mu.Unlock()

		c.logger.Debug("subscription created", "channel", channel)
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Subscription), nil
}

// ensureConnected dials the broker on first use. Callers are already
// serialized per channel by singleflight; the connection check itself
// is guarded by the client mutex.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token, err := c.fetchCredential(ctx)
	if err != nil {
		return err
	}

	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := c.dialer.DialContext(ctx, c.connectURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrConnect, c.connectURL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	if c.conn != nil {
		// Lost a race with another flight; keep the existing connection.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info("broker connected", "url", c.connectURL)
	return nil
}

type credentialResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Error   string `json:"error"`
}

func (c *Client) fetchCredential(ctx context.Context) (string, error) {
	u := c.gatewayURL + "/credential?userId=" + url.QueryEscape(c.userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialFetch, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrCredentialFetch, err)
	}

	var cr credentialResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: status %d: %v", ErrCredentialFetch, resp.StatusCode, err)
	}
	if !cr.Success || cr.Token == "" {
		return "", fmt.Errorf("%w: %s", ErrCredentialFetch, cr.Error)
	}
	return cr.Token, nil
}

// command mirrors the broker's subscribe/unsubscribe wire shape.
type command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// push mirrors the broker's channel delivery wire shape.
type push struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) writeCommand(cmd command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(cmd)
}

// readLoop is the single reader on the connection. All subscription
// dispatch happens here, so events within one subscription are
// delivered serially in arrival order.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var p push
		if err := conn.ReadJSON(&p); err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			if c.connErr == nil {
				c.connErr = fmt.Errorf("%w: connection lost: %v", ErrConnect, err)
			}
			c.mu.Unlock()
			if !alreadyClosed {
				c.logger.Warn("broker connection lost", "error", err)
			}
			return
		}

		c.mu.Lock()
		sub := c.subs[p.Channel]
		c.mu.Unlock()
		if sub == nil {
			continue
		}

		ev, err := wire.Decode(p.Data)
		if err != nil {
			c.logger.Warn("dropping undecodable event", "channel", p.Channel, "error", err)
			continue
		}
		sub.dispatch(ev)
	}
}

// Close tears down the connection and all subscriptions. In-flight
// streams terminate with ErrCanceled.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
