package streamhandler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/janhq/chat-stream-api/internal/domain/streaming"
	chatrequests "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/chat"
	chatresponses "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses/chat"
)

// StreamService is the session protocol exposed over HTTP.
type StreamService interface {
	StartSession(ctx context.Context, in streaming.StartInput) (*streaming.StartResult, error)
	AttachSession(ctx context.Context, sessionID string, obs streaming.Observer) error
	CancelSession(ctx context.Context, sessionID string) bool
	SessionStatus(sessionID string) (streaming.StatusView, bool)
}

// StreamHandler adapts HTTP requests to the streaming service.
type StreamHandler struct {
	service StreamService
}

func NewStreamHandler(service StreamService) *StreamHandler {
	return &StreamHandler{service: service}
}

func (h *StreamHandler) StartStream(ctx context.Context, req chatrequests.StartStreamRequest) (*chatresponses.StartStreamResponse, error) {
	result, err := h.service.StartSession(ctx, streaming.StartInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		return nil, err
	}
	resp := chatresponses.NewStartStreamResponse(result)
	return &resp, nil
}

// AttachStream streams the session to the client as SSE. An error is only
// returned when nothing has been written yet.
func (h *StreamHandler) AttachStream(reqCtx *gin.Context, sessionID string) error {
	return h.service.AttachSession(reqCtx.Request.Context(), sessionID, newSSEObserver(reqCtx))
}

func (h *StreamHandler) CancelStream(ctx context.Context, sessionID string) bool {
	return h.service.CancelSession(ctx, sessionID)
}

func (h *StreamHandler) StreamStatus(sessionID string) (streaming.StatusView, bool) {
	return h.service.SessionStatus(sessionID)
}
