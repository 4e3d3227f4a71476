// ABOUTME: Pumps engine stream events onto a broker channel as wire events
// ABOUTME: Guarantees ordered publishes and exactly one terminal event per turn

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chatrelay/chatrelay/internal/engine"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/wire"
)

// EventPublisher publishes one wire event to a broker channel.
// publish.Publisher satisfies this.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, ev wire.Event) error
}

// Bridge drives one generation stream per Run call, publishing each
// delta as it arrives and closing the turn with exactly one done or
// error event. Publishes are awaited one at a time so subscribers see
// chunks in generation order.
type Bridge struct {
	publisher EventPublisher
	store     store.Store
	logger    *slog.Logger
}

// New creates a bridge. The store may be nil when persistence is
// disabled.
func New(publisher EventPublisher, st store.Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		publisher: publisher,
		store:     st,
		logger:    logger.With("component", "bridge"),
	}
}

// Run consumes stream until it terminates, relaying events onto
// channel tagged with messageID. It returns nil when the turn
// completed with a done event, and the underlying failure otherwise.
// The stream is closed before Run returns.
func (b *Bridge) Run(ctx context.Context, channel, messageID string, stream engine.Stream) error {
	defer stream.Close()

	logger := b.logger.With("channel", channel, "message_id", messageID)
	var response strings.Builder

	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream ended without a terminal event, surface it as
				// an error so subscribers are not left hanging.
				err = errors.New("generation stream ended without completing")
			}
			return b.fail(ctx, logger, channel, messageID, err)
		}

		switch ev.Type {
		case engine.EventTextDelta:
			if ev.Text == "" {
				continue
			}
			response.WriteString(ev.Text)
			if err := b.publisher.Publish(ctx, channel, wire.Delta(messageID, ev.Text)); err != nil {
				return b.fail(ctx, logger, channel, messageID, fmt.Errorf("publishing delta: %w", err))
			}

		case engine.EventDone:
			if err := b.publisher.Publish(ctx, channel, wire.Done(messageID)); err != nil {
				return b.fail(ctx, logger, channel, messageID, fmt.Errorf("publishing done: %w", err))
			}
			b.complete(ctx, logger, messageID, response.String())
			logger.Info("turn completed", "response_len", response.Len())
			return nil

		case engine.EventError:
			return b.fail(ctx, logger, channel, messageID, ev.Err)
		}
	}
}

// fail records the failure and publishes a terminal error event. The
// error publish is best effort: if the broker is also unreachable the
// failure is logged and the original error still wins.
func (b *Bridge) fail(ctx context.Context, logger *slog.Logger, channel, messageID string, cause error) error {
	logger.Error("turn failed", "error", cause)

	if b.store != nil {
		if err := b.store.FailTurn(ctx, messageID, cause.Error()); err != nil {
			logger.Warn("recording failed turn", "error", err)
		}
	}

	if err := b.publisher.Publish(ctx, channel, wire.Errorf(messageID, "%s", cause.Error())); err != nil {
		logger.Warn("publishing error event", "error", err)
	}
	return cause
}

func (b *Bridge) complete(ctx context.Context, logger *slog.Logger, messageID, response string) {
	if b.store == nil {
		return
	}
	if err := b.store.CompleteTurn(ctx, messageID, response); err != nil {
		logger.Warn("recording completed turn", "error", err)
	}
}
