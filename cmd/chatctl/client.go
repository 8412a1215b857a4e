package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"resty.dev/v3"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/domain/streaming"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/chat"
	conversationrequests "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/conversation"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses"
	chatresponses "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses/chat"
	conversationresponses "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses/conversation"
)

const sseMaxLine = 1024 * 1024

// apiClient talks to the chat stream API.
type apiClient struct {
	http    *resty.Client
	baseURL string
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		http:    resty.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *apiClient) Close() error {
	return c.http.Close()
}

// apiError is returned for non-2xx responses.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

func (c *apiClient) CreateConversation(ctx context.Context, title string) (*conversation.Conversation, error) {
	var out conversation.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(conversationrequests.CreateConversationRequest{Title: title}).
		SetResult(&out).
		Post(c.baseURL + "/v1/conversations")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &out, nil
}

func (c *apiClient) ListMessages(ctx context.Context, conversationID uint, limit int) (*conversationresponses.MessageListResponse, error) {
	var out conversationresponses.MessageListResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get(fmt.Sprintf("%s/v1/conversations/%d/messages", c.baseURL, conversationID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &out, nil
}

func (c *apiClient) StartStream(ctx context.Context, conversationID uint, message string) (*chatresponses.StartStreamResponse, error) {
	var out chatresponses.StartStreamResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chat.StartStreamRequest{ConversationID: conversationID, Message: message}).
		SetResult(&out).
		Post(c.baseURL + "/v1/chat/stream/start")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &out, nil
}

func (c *apiClient) CancelStream(ctx context.Context, sessionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(c.sessionURL(sessionID) + "/cancel")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *apiClient) StreamStatus(ctx context.Context, sessionID string) (*streaming.StatusView, error) {
	var out streaming.StatusView
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.sessionURL(sessionID) + "/status")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &out, nil
}

// streamHandler receives decoded events while a session is attached.
type streamHandler struct {
	OnToken    func(streaming.TokenEvent)
	OnComplete func(streaming.CompleteEvent)
	OnError    func(streaming.ErrorEvent)
}

// Attach opens the event stream of a session and dispatches events until the
// server closes it or ctx is cancelled.
func (c *apiClient) Attach(ctx context.Context, sessionID string, handler streamHandler) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get(c.sessionURL(sessionID))
	if err != nil {
		return err
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return &apiError{Status: resp.StatusCode(), Message: "empty response"}
	}
	defer resp.RawResponse.Body.Close()

	if resp.IsError() {
		var errBody responses.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 4096))
		_ = json.Unmarshal(raw, &errBody)
		return &apiError{Status: resp.StatusCode(), Message: errBody.Error}
	}

	return readEvents(resp.RawResponse.Body, func(name string, data []byte) error {
		switch name {
		case streaming.EventToken:
			var ev streaming.TokenEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode token event: %w", err)
			}
			if handler.OnToken != nil {
				handler.OnToken(ev)
			}
		case streaming.EventComplete:
			var ev streaming.CompleteEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode complete event: %w", err)
			}
			if handler.OnComplete != nil {
				handler.OnComplete(ev)
			}
		case streaming.EventError:
			var ev streaming.ErrorEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode error event: %w", err)
			}
			if handler.OnError != nil {
				handler.OnError(ev)
			}
		}
		return nil
	})
}

func errorFromResponse(resp *resty.Response) error {
	var body responses.ErrorResponse
	_ = json.Unmarshal([]byte(resp.String()), &body)
	return &apiError{Status: resp.StatusCode(), Message: body.Error}
}

func (c *apiClient) sessionURL(sessionID string) string {
	return c.baseURL + "/v1/chat/stream/" + url.PathEscape(sessionID)
}

// readEvents splits an SSE body into events. Comment lines are skipped.
func readEvents(body io.Reader, dispatch func(name string, data []byte) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), sseMaxLine)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := dispatch(name, []byte(strings.Join(data, "\n"))); err != nil {
					return err
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
