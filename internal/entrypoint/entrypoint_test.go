package entrypoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sap-order-agent/server/internal/agent/model"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []model.QueryInput
	reply string
	err   error
}

func (f *fakeRunner) Invoke(_ context.Context, in model.QueryInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return "", f.err
	}
	return f.reply + " (" + in.Query + ")", nil
}

func newTestHandler(r *fakeRunner) *Handler {
	h := NewHandler(r, "sap_memory")
	h.now = func() time.Time { return time.Date(2025, 10, 26, 22, 59, 50, 0, time.UTC) }
	return h
}

func TestHandle_DefaultsActorAndSession(t *testing.T) {
	r := &fakeRunner{reply: "ok"}
	h := newTestHandler(r)

	resp := h.Handle(context.Background(), Payload{Prompt: " Can you get details for order 4062? "})
	assert.Equal(t, DefaultActorID, resp.ActorID)
	assert.Regexp(t, `^sap_session_user_20251026_225950_[0-9a-f]{8}$`, resp.SessionID)
	assert.Equal(t, "ok (Can you get details for order 4062?)", resp.Response)

	require.Len(t, r.calls, 1)
	assert.Equal(t, model.QueryInput{ActorID: "user", SessionID: resp.SessionID, Query: "Can you get details for order 4062?"}, r.calls[0])
}

func TestHandle_NewSessionsDoNotCollide(t *testing.T) {
	r := &fakeRunner{reply: "ok"}
	h := newTestHandler(r)

	first := h.Handle(context.Background(), Payload{Prompt: "Tell me about order 4353"})
	second := h.Handle(context.Background(), Payload{Prompt: "Search recent orders"})
	assert.Equal(t, first.ActorID, second.ActorID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestHandle_ContinuesSession(t *testing.T) {
	r := &fakeRunner{reply: "ok"}
	h := newTestHandler(r)

	resp := h.Handle(context.Background(), Payload{Prompt: "q", ActorID: "john_acme", SessionID: "agentcore_session_12345", MemoryID: "other"})
	assert.Equal(t, "john_acme", resp.ActorID)
	assert.Equal(t, "agentcore_session_12345", resp.SessionID)
}

func TestHandle_Errors(t *testing.T) {
	r := &fakeRunner{err: errors.New("model unavailable")}
	h := newTestHandler(r)

	resp := h.Handle(context.Background(), Payload{Prompt: "q"})
	assert.Equal(t, "Error: model unavailable", resp.Response)
	assert.NotEmpty(t, resp.SessionID)

	resp = h.Handle(context.Background(), Payload{Prompt: "  "})
	assert.Equal(t, "Error: prompt is required", resp.Response)
	assert.Len(t, r.calls, 1)
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestHandler(&fakeRunner{reply: "done"})))
	defer srv.Close()

	res, err := http.Post(srv.URL+"/invocations", "application/json",
		strings.NewReader(`{"prompt":"hello","actor_id":"a","session_id":"s"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	var out Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, Response{Response: "done (hello)", SessionID: "s", ActorID: "a"}, out)

	bad, err := http.Post(srv.URL+"/invocations", "application/json", strings.NewReader(`{"prompt":`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	var e errorResponse
	require.NoError(t, json.NewDecoder(bad.Body).Decode(&e))
	assert.Contains(t, e.Error, "invalid invocation payload")

	ping, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer ping.Body.Close()
	assert.Equal(t, http.StatusOK, ping.StatusCode)

	wrongMethod, err := http.Get(srv.URL + "/invocations")
	require.NoError(t, err)
	defer wrongMethod.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, wrongMethod.StatusCode)
}

func TestServer_StartFailureReleasesWatcher(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := NewServer(busy.Addr().String(), newTestHandler(&fakeRunner{}))
	err = srv.Start(context.Background())
	require.Error(t, err)

	select {
	case <-srv.watcherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown watcher still running after Start returned")
	}
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer("127.0.0.1:0", newTestHandler(&fakeRunner{}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestConsole_REPL(t *testing.T) {
	r := &fakeRunner{reply: "answer"}
	var out bytes.Buffer
	c := NewConsole(newTestHandler(r), strings.NewReader("first\n\nsecond\nquit\nnever\n"), &out)

	require.NoError(t, c.REPL(context.Background(), "sap_user_123", ""))
	require.Len(t, r.calls, 2)
	assert.Regexp(t, `^sap_session_sap_user_123_20251026_225950_[0-9a-f]{8}$`, r.calls[0].SessionID)
	assert.Equal(t, r.calls[0].SessionID, r.calls[1].SessionID)
	assert.Contains(t, out.String(), "answer (second)")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestConsole_Demo(t *testing.T) {
	r := &fakeRunner{reply: "answer"}
	var out bytes.Buffer
	c := NewConsole(newTestHandler(r), strings.NewReader(""), &out)

	script := DemoScript(model.ProfileBasic, "4353")
	require.NoError(t, c.Demo(context.Background(), "a", "s1", script))
	require.Len(t, r.calls, len(script))
	assert.Equal(t, "Test our SAP connection", r.calls[0].Query)
	assert.Contains(t, out.String(), "All demo queries completed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Demo(ctx, "a", "s1", script), context.Canceled)

	assert.Len(t, DemoScript(model.ProfileMemory, "4353"), 3)
	assert.Contains(t, DemoScript(model.ProfileMetadata, "4353")[0].Prompt, "4353")
}
