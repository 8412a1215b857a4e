package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaininference "github.com/janhq/chat-stream-api/internal/domain/inference"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

func newTestClient(t *testing.T, baseURL string, readTimeout time.Duration) *CompletionClient {
	t.Helper()
	log := zerolog.Nop()
	return NewCompletionClient(
		NewRestyClient("test-inference", 2*time.Second, log),
		Config{BaseURL: baseURL + "/", Model: "test-model", APIKey: "secret", ReadTimeout: readTimeout},
		log,
	)
}

func writeChunk(w http.ResponseWriter, text string) {
	payload, _ := json.Marshal(map[string]any{
		"model":   "served-model",
		"choices": []map[string]any{{"text": text, "index": 0}},
	})
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.(http.Flusher).Flush()
}

func drain(t *testing.T, stream domaininference.Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		text, err := stream.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func TestGenerateStreamRelaysIncrementsInOrder(t *testing.T) {
	var captured openai.CompletionRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		for _, text := range []string{"Hel", "", "lo", " there"} {
			writeChunk(w, text)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1", time.Second)
	stream, err := client.GenerateStream(context.Background(), domaininference.Request{
		Prompt:        "User: Hi\n\nAssistant:",
		MaxTokens:     42,
		StopSequences: []string{"\nUser:"},
	})
	require.NoError(t, err)
	defer stream.Close()

	got, err := drain(t, stream)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"Hel", "lo", " there"}, got)
	assert.Equal(t, "served-model", stream.Model())

	assert.Equal(t, "Bearer secret", authHeader)
	assert.True(t, captured.Stream)
	assert.Equal(t, 42, captured.MaxTokens)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, []string{"\nUser:"}, captured.Stop)
	assert.Equal(t, "User: Hi\n\nAssistant:", captured.Prompt)

	// a finished stream keeps reporting EOF
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGenerateStreamNonSuccessStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType platformerrors.ErrorType
	}{
		{name: "server error", status: http.StatusInternalServerError, wantType: platformerrors.ErrorTypeExternal},
		{name: "bad request", status: http.StatusBadRequest, wantType: platformerrors.ErrorTypeExternal},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantType: platformerrors.ErrorTypeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"internal detail"}}`)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, time.Second).GenerateStream(context.Background(), domaininference.Request{Prompt: "x", MaxTokens: 1})
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestGenerateStreamIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "first")
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	stream, err := newTestClient(t, server.URL, 100*time.Millisecond).GenerateStream(context.Background(), domaininference.Request{Prompt: "x", MaxTokens: 5})
	require.NoError(t, err)
	defer stream.Close()

	text, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	_, err = stream.Recv()
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTimeout), "got %v", err)
}

func TestGenerateStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "partial")
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newTestClient(t, server.URL, 5*time.Second).GenerateStream(ctx, domaininference.Request{Prompt: "x", MaxTokens: 5})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.NoError(t, err)

	cancel()
	start := time.Now()
	_, err = stream.Recv()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTimeout))
}

func TestGenerateStreamUpstreamErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "ok")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"context length exceeded\"}}\n\n")
	}))
	defer server.Close()

	stream, err := newTestClient(t, server.URL, time.Second).GenerateStream(context.Background(), domaininference.Request{Prompt: "x", MaxTokens: 5})
	require.NoError(t, err)
	defer stream.Close()

	got, err := drain(t, stream)
	assert.Equal(t, []string{"ok"}, got)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal), "got %v", err)
}

func TestGenerateStreamConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url, time.Second).GenerateStream(context.Background(), domaininference.Request{Prompt: "x", MaxTokens: 5})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal), "got %v", err)
}
