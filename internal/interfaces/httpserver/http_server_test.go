package httpserver_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/chat-stream-api/internal/config"
	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/domain/inference"
	"github.com/janhq/chat-stream-api/internal/domain/session"
	"github.com/janhq/chat-stream-api/internal/domain/streaming"
	"github.com/janhq/chat-stream-api/internal/domain/tokenbudget"
	"github.com/janhq/chat-stream-api/internal/infrastructure/repository/conversationrepo"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

// fakeGenerator hands out streams fed from items. Closing items ends the
// stream normally.
type fakeGenerator struct {
	items chan string
}

func scriptedGenerator(tokens ...string) *fakeGenerator {
	items := make(chan string, len(tokens))
	for _, tok := range tokens {
		items <- tok
	}
	close(items)
	return &fakeGenerator{items: items}
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, _ inference.Request) (inference.Stream, error) {
	return &fakeStream{ctx: ctx, items: g.items}, nil
}

type fakeStream struct {
	ctx   context.Context
	items chan string
}

func (s *fakeStream) Recv() (string, error) {
	select {
	case tok, ok := <-s.items:
		if !ok {
			return "", io.EOF
		}
		return tok, nil
	case <-s.ctx.Done():
		return "", platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeCancelled, "cancelled", s.ctx.Err(), "")
	}
}

func (s *fakeStream) Close() error  { return nil }
func (s *fakeStream) Model() string { return "test-model" }

type testEnv struct {
	server *httptest.Server
	gen    *fakeGenerator
}

func newTestEnv(t *testing.T, gen *fakeGenerator, ready httpserver.ReadinessCheck) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := conversationrepo.NewInMemoryRepository()
	streamService := streaming.NewService(
		repo,
		gen,
		session.NewRegistry(),
		tokenbudget.NewEstimator(tokenbudget.DefaultCharsPerToken, zerolog.Nop()),
		nil,
		streaming.Config{
			Limits: tokenbudget.Limits{Ceiling: 22800, SafetyBuffer: 100, MinResponse: 500},
			Model:  "test-model",
		},
		zerolog.Nop(),
	)
	provider := handlers.NewProvider(streamService, conversation.NewService(repo))
	srv := httpserver.New(&config.Config{ServiceName: "chat-stream-test"}, zerolog.Nop(), provider, ready)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp, payload
}

func (e *testEnv) createConversation(t *testing.T) uint {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/conversations", `{"title":"test"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return uint(body["id"].(float64))
}

func (e *testEnv) start(t *testing.T, conversationID uint, message string) (sessionID string, messageID uint) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/chat/stream/start",
		fmt.Sprintf(`{"conversationId":%d,"message":%q}`, conversationID, message))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["sessionId"].(string), uint(body["messageId"].(float64))
}

type sseEvent struct {
	name string
	data map[string]any
}

// readEvent returns the next named event, skipping comment frames.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
		}
	}
}

func (e *testEnv) attach(t *testing.T, sessionID string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(e.server.URL + "/v1/chat/stream/" + sessionID)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator(), func(context.Context) error { return errors.New("database down") })

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, body = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "database down", body["error"])

	metricsResp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	raw, _ := io.ReadAll(metricsResp.Body)
	assert.Contains(t, string(raw), "jan_chat_stream_requests_total")
}

func TestStreamHappyPath(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator("Hello", " from", " Jan"), nil)
	convID := env.createConversation(t)
	sessionID, messageID := env.start(t, convID, "Hello")
	assert.True(t, strings.HasPrefix(sessionID, "sess_"))

	resp, reader := env.attach(t, sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var tokens []string
	for {
		ev := readEvent(t, reader)
		if ev.name != streaming.EventToken {
			require.Equal(t, streaming.EventComplete, ev.name)
			assert.Equal(t, float64(len(tokens)), ev.data["tokenCount"])
			assert.Equal(t, float64(messageID), ev.data["messageId"])
			break
		}
		assert.Equal(t, sessionID, ev.data["sessionId"])
		tokens = append(tokens, ev.data["token"].(string))
	}
	assert.Equal(t, []string{"Hello", " from", " Jan"}, tokens)

	listResp, list := env.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages", convID), "")
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	data := list["data"].([]any)
	require.Len(t, data, 2)
	assistant := data[1].(map[string]any)
	assert.Equal(t, "Hello from Jan", assistant["content"])
	metadata := assistant["metadata"].(map[string]any)
	assert.Equal(t, "completed", metadata["status"])
	assert.Equal(t, float64(3), metadata["tokenCount"])

	// the session is gone once the stream ends
	assert.Eventually(t, func() bool {
		statusResp, _ := env.do(t, http.MethodGet, "/v1/chat/stream/"+sessionID+"/status", "")
		return statusResp.StatusCode == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator(), nil)
	convID := env.createConversation(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing conversation", body: `{"message":"hi"}`, status: http.StatusBadRequest},
		{name: "blank message", body: fmt.Sprintf(`{"conversationId":%d,"message":"   "}`, convID), status: http.StatusBadRequest},
		{name: "too long", body: fmt.Sprintf(`{"conversationId":%d,"message":%q}`, convID, strings.Repeat("a", 8001)), status: http.StatusBadRequest},
		{name: "unknown conversation", body: `{"conversationId":999,"message":"hi"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/v1/chat/stream/start", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["code"])
		})
	}
}

func TestAttachUnknownSessionIsJSON404(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator(), nil)

	resp, body := env.do(t, http.MethodGet, "/v1/chat/stream/sess_missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Equal(t, "session not found", body["error"])
}

func TestCancelPendingSession(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator("never"), nil)
	convID := env.createConversation(t)

	resp, _ := env.do(t, http.MethodPost, "/v1/chat/stream/sess_missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	sessionID, _ := env.start(t, convID, "Hello")
	statusResp, status := env.do(t, http.MethodGet, "/v1/chat/stream/"+sessionID+"/status", "")
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	assert.Equal(t, "pending", status["state"])

	resp, body := env.do(t, http.MethodPost, "/v1/chat/stream/"+sessionID+"/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	resp, _ = env.do(t, http.MethodGet, "/v1/chat/stream/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRunningStreamKeepsPartialContent(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{items: make(chan string)}, nil)
	convID := env.createConversation(t)
	sessionID, _ := env.start(t, convID, "Tell me a story")

	resp, reader := env.attach(t, sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.gen.items <- "Once"
	env.gen.items <- " upon"
	assert.Equal(t, "Once", readEvent(t, reader).data["token"])
	assert.Equal(t, " upon", readEvent(t, reader).data["token"])

	// a second client cannot take over the running session
	conflictResp, _ := env.do(t, http.MethodGet, "/v1/chat/stream/"+sessionID, "")
	assert.Equal(t, http.StatusConflict, conflictResp.StatusCode)

	cancelResp, _ := env.do(t, http.MethodPost, "/v1/chat/stream/"+sessionID+"/cancel", "")
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)

	ev := readEvent(t, reader)
	assert.Equal(t, streaming.EventError, ev.name)
	assert.Equal(t, string(streaming.ErrorTypeCancelled), ev.data["errorType"])

	// persistence runs before the terminal event is written
	_, list := env.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages", convID), "")
	data := list["data"].([]any)
	require.Len(t, data, 2)
	assistant := data[1].(map[string]any)
	assert.Equal(t, "Once upon", assistant["content"])
	assert.Equal(t, "cancelled", assistant["metadata"].(map[string]any)["status"])

	assert.Eventually(t, func() bool {
		r, _ := env.do(t, http.MethodPost, "/v1/chat/stream/"+sessionID+"/cancel", "")
		return r.StatusCode == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestListMessagesValidation(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator(), nil)

	resp, _ := env.do(t, http.MethodGet, "/v1/conversations/abc/messages", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/v1/conversations/42/messages", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	convID := env.createConversation(t)
	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages?limit=1000", convID), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "limit")

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/v1/conversations/%d/messages", convID), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
}

func TestCreateConversationWithoutBody(t *testing.T) {
	env := newTestEnv(t, scriptedGenerator(), nil)

	resp, body := env.do(t, http.MethodPost, "/v1/conversations", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "New conversation", body["title"])
}
