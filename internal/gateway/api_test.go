// ABOUTME: Tests for the gateway HTTP API
// ABOUTME: Covers turn validation, credentials, turn lookup, and CORS

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/engine"
	"github.com/chatrelay/chatrelay/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Broker: config.BrokerConfig{
			Embedded: true,
			APIKey:   "test-publish-key",
		},
		Auth: config.AuthConfig{
			SigningSecret: "gateway-test-secret",
			TokenTTL:      time.Minute,
		},
		Engine: config.EngineConfig{Provider: "scripted"},
		Database: config.DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "turns.db"),
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestGateway(t *testing.T, provider engine.Provider) (*Gateway, *httptest.Server) {
	t.Helper()

	g, err := New(testConfig(t), nil)
	require.NoError(t, err)
	if provider != nil {
		g.provider = provider
	}

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		srv.Close()
		g.broker.Close()
		g.store.Close()
	})
	return g, srv
}

func postTurn(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/turn", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTurnAcceptsAndAssignsChannel(t *testing.T) {
	provider := engine.NewScriptedProvider("test").AddTextResponse("hello back")
	g, srv := newTestGateway(t, provider)

	resp := postTurn(t, srv, `{"id":"abc","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal(t, "chat:abc", tr.Channel)
	assert.NotEmpty(t, tr.MessageID)

	rec, err := g.store.GetTurn(t.Context(), tr.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.ConversationID)
	assert.Equal(t, "hi", rec.Prompt)

	waitForStatus(t, g, tr.MessageID, store.StatusDone)
}

func TestTurnDefaultsConversation(t *testing.T) {
	provider := engine.NewScriptedProvider("test").AddTextResponse("ok")
	_, srv := newTestGateway(t, provider)

	resp := postTurn(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal(t, "chat:default", tr.Channel)
}

func TestTurnAcceptsPartsEncoding(t *testing.T) {
	provider := engine.NewScriptedProvider("test").AddTextResponse("ok")
	g, srv := newTestGateway(t, provider)

	body := `{"id":"p","messages":[{"role":"user","parts":[{"type":"text","text":"from "},{"type":"text","text":"parts"}]}]}`
	resp := postTurn(t, srv, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))

	rec, err := g.store.GetTurn(t.Context(), tr.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "from parts", rec.Prompt)
}

func TestTurnRejectsMissingMessages(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp := postTurn(t, srv, `{"id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postTurn(t, srv, `{"id":"abc","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTurnRejectsMalformedBody(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp := postTurn(t, srv, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTurnRejectsUnknownRole(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp := postTurn(t, srv, `{"messages":[{"role":"robot","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTurnRejectsBlankMessages(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp := postTurn(t, srv, `{"messages":[{"role":"user","content":"   "}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCredentialIssuesVerifiableToken(t *testing.T) {
	g, srv := newTestGateway(t, nil)

	resp, err := http.Get(srv.URL + "/credential?userId=user-42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cr CredentialResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	assert.True(t, cr.Success)
	require.NotEmpty(t, cr.Token)
	assert.Len(t, strings.Split(cr.Token, "."), 3)

	subject, err := g.minter.Verify(cr.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestCredentialDefaultsToAnonymous(t *testing.T) {
	g, srv := newTestGateway(t, nil)

	resp, err := http.Get(srv.URL + "/credential")
	require.NoError(t, err)
	defer resp.Body.Close()

	var cr CredentialResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	require.True(t, cr.Success)

	subject, err := g.minter.Verify(cr.Token)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", subject)
}

func TestGetTurnLookup(t *testing.T) {
	provider := engine.NewScriptedProvider("test").AddTextResponse("stored answer")
	g, srv := newTestGateway(t, provider)

	resp := postTurn(t, srv, `{"id":"look","messages":[{"role":"user","content":"q"}]}`)
	var tr TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	waitForStatus(t, g, tr.MessageID, store.StatusDone)

	getResp, err := http.Get(srv.URL + "/turns/" + tr.MessageID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&body))
	assert.Equal(t, "done", body["status"])
	assert.Equal(t, "stored answer", body["response"])
}

func TestGetTurnNotFound(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp, err := http.Get(srv.URL + "/turns/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, srv.URL+"/turn", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func waitForStatus(t *testing.T, g *Gateway, messageID, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := g.store.GetTurn(t.Context(), messageID)
		require.NoError(t, err)
		if rec.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("turn %s never reached status %s", messageID, want)
}
