// ABOUTME: HTTP client for the broker's publish API
// ABOUTME: Delivers one stream event per call and surfaces broker rejections

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/wire"
)

// apiKeyHeader carries publish authorization to the broker.
const apiKeyHeader = "X-API-Key"

// maxErrorBody bounds how much of a rejection body is retained.
const maxErrorBody = 4096

// Error is returned when the broker's publish API rejects a publish.
// It carries the broker's HTTP status and response body.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker rejected publish: status %d: %s", e.Status, e.Body)
}

// Request is the envelope POSTed to the broker's publish endpoint.
type Request struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Publisher delivers stream events to the broker's publish endpoint.
// It is stateless and safe for concurrent use.
type Publisher struct {
	publishURL string
	apiKey     string
	httpc      *http.Client
	logger     *slog.Logger
}

// New creates a Publisher targeting the given publish URL.
// Pass nil httpc to use http.DefaultClient, nil logger for the default.
func New(publishURL, apiKey string, httpc *http.Client, logger *slog.Logger) *Publisher {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		publishURL: publishURL,
		apiKey:     apiKey,
		httpc:      httpc,
		logger:     logger.With("component", "publisher"),
	}
}

// Publish delivers one event to the given channel, waiting for broker
// acknowledgment. A non-2xx broker response is returned as *Error.
func (p *Publisher) Publish(ctx context.Context, channel string, ev wire.Event) error {
	data, err := wire.Encode(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	body, err := json.Marshal(Request{Channel: channel, Data: data})
	if err != nil {
		return fmt.Errorf("encoding publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.publishURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, p.apiKey)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("publishing to broker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pubErr := &Error{Status: resp.StatusCode, Body: string(respBody)}
		p.logger.Error("publish rejected",
			"channel", channel,
			"kind", ev.Kind.String(),
			"status", pubErr.Status,
		)
		return pubErr
	}

	return nil
}
