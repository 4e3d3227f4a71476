// ABOUTME: Tests for provider selection and the scripted provider
// ABOUTME: Covers stream ordering, error turns, and cancellation

package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(Options{Provider: "anthropic", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Contains(t, p.Name(), "Anthropic")

	p, err = New(Options{Provider: "openai", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Contains(t, p.Name(), "OpenAI")

	p, err = New(Options{Provider: "scripted"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", p.Name())

	_, err = New(Options{Provider: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestScriptedProviderStreamsTextInOrder(t *testing.T) {
	p := NewScriptedProvider("test").AddTextResponse("The quick brown fox jumps over the lazy dog")

	stream, err := p.Stream(t.Context(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var b strings.Builder
	var sawDone bool
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		switch ev.Type {
		case EventTextDelta:
			assert.False(t, sawDone, "delta after done")
			b.WriteString(ev.Text)
		case EventDone:
			sawDone = true
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}

	assert.True(t, sawDone)
	assert.Equal(t, "The quick brown fox jumps over the lazy dog", b.String())
}

func TestScriptedProviderRecordsRequests(t *testing.T) {
	p := NewScriptedProvider("test").AddTextResponse("ok")

	req := Request{Messages: []Message{{Role: RoleUser, Content: "question"}}}
	stream, err := p.Stream(t.Context(), req)
	require.NoError(t, err)
	stream.Close()

	require.Len(t, p.Requests, 1)
	assert.Equal(t, "question", p.Requests[0].Messages[0].Content)
}

func TestScriptedProviderErrorTurn(t *testing.T) {
	wantErr := errors.New("backend unavailable")
	p := NewScriptedProvider("test").AddError(wantErr)

	stream, err := p.Stream(t.Context(), Request{})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Type)
	assert.ErrorIs(t, ev.Err, wantErr)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestScriptedProviderExhaustedTurns(t *testing.T) {
	p := NewScriptedProvider("test")

	_, err := p.Stream(t.Context(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no more turns")
}

func TestStreamCloseCancelsDelayedTurn(t *testing.T) {
	p := NewScriptedProvider("test").AddTurn(ScriptedTurn{
		Text:  "never delivered",
		Delay: 10 * time.Second,
	})

	stream, err := p.Stream(t.Context(), Request{})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	// The stream context is canceled, so Recv must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := stream.Recv(); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Recv blocked after Close")
	}
}

func TestStreamCloseReleasesFailedProducer(t *testing.T) {
	// Fill the event buffer, then fail the producer. After Close the
	// trailing error send must give up instead of parking the
	// goroutine forever, so the drained stream ends without an error
	// event.
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	produced := make(chan struct{})
	stream := newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		defer close(produced)
		for i := 0; i < cap(ch); i++ {
			ch <- Event{Type: EventTextDelta, Text: "x"}
		}
		return errors.New("backend dropped mid-turn")
	})

	<-produced
	require.NoError(t, stream.Close())
	time.Sleep(50 * time.Millisecond)

	deltas := 0
	for {
		ev, err := stream.Recv()
		if err != nil {
			break
		}
		require.NotEqual(t, EventError, ev.Type)
		deltas++
	}
	assert.Greater(t, deltas, 0)
}

func TestChunkTextRuneSafe(t *testing.T) {
	chunks := chunkText("héllo wörld, this is chünked", 10)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "héllo wörld, this is chünked", strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
	assert.Nil(t, chunkText("", 10))
}

func TestBuildAnthropicInputSplitsSystem(t *testing.T) {
	system, msgs := buildAnthropicInput([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "bye"},
	})
	assert.Equal(t, "be brief", system)
	assert.Len(t, msgs, 3)
}

func TestBuildOpenAIInputSplitsSystem(t *testing.T) {
	system, items := buildOpenAIInput([]Message{
		{Role: RoleSystem, Content: "one"},
		{Role: RoleSystem, Content: "two"},
		{Role: RoleUser, Content: "hi"},
	})
	assert.Equal(t, "one\n\ntwo", system)
	assert.Len(t, items, 1)
}
