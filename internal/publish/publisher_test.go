// ABOUTME: Tests for the broker publish API client
// ABOUTME: Covers success, rejection with status and body, and API key header

package publish

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_Success(t *testing.T) {
	var got Request
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, "test-key", nil, discardLogger())
	err := p.Publish(t.Context(), "chat:abc", wire.Delta("m1", "Hel"))
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "chat:abc", got.Channel)

	ev, err := wire.Decode(got.Data)
	require.NoError(t, err)
	assert.Equal(t, wire.Delta("m1", "Hel"), ev)
}

func TestPublisher_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad api key"))
	}))
	defer srv.Close()

	p := New(srv.URL, "wrong-key", nil, discardLogger())
	err := p.Publish(t.Context(), "chat:abc", wire.Done("m1"))
	require.Error(t, err)

	var pubErr *Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusForbidden, pubErr.Status)
	assert.Equal(t, "bad api key", pubErr.Body)
}

func TestPublisher_BrokerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so the address refuses connections

	p := New(srv.URL, "key", nil, discardLogger())
	err := p.Publish(t.Context(), "chat:abc", wire.Done("m1"))
	require.Error(t, err)

	var pubErr *Error
	assert.False(t, errors.As(err, &pubErr), "transport errors are not broker rejections")
}
