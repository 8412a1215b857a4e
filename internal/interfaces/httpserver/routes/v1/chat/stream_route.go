package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers/streamhandler"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests"
	chatrequests "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/chat"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses"
	chatresponses "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses/chat"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

// StreamRoute exposes the two phase start/attach streaming protocol.
type StreamRoute struct {
	handler *streamhandler.StreamHandler
}

func NewStreamRoute(handler *streamhandler.StreamHandler) *StreamRoute {
	return &StreamRoute{handler: handler}
}

func (route *StreamRoute) RegisterRouter(router *gin.RouterGroup) {
	stream := router.Group("/chat/stream")
	stream.POST("/start", route.PostStart)
	stream.GET("/:session_id", route.GetStream)
	stream.POST("/:session_id/cancel", route.PostCancel)
	stream.GET("/:session_id/status", route.GetStatus)
}

// PostStart
// @Summary Start a stream session
// @Description Stores the user message and an empty assistant placeholder, then returns a session id to attach to.
// @Tags Chat Stream API
// @Accept json
// @Produce json
// @Param request body chatrequests.StartStreamRequest true "Conversation and message"
// @Success 201 {object} chatresponses.StartStreamResponse
// @Failure 400 {object} responses.ErrorResponse "Invalid input or message too long for the context window"
// @Failure 404 {object} responses.ErrorResponse "Conversation not found"
// @Failure 500 {object} responses.ErrorResponse
// @Router /v1/chat/stream/start [post]
func (route *StreamRoute) PostStart(reqCtx *gin.Context) {
	var request chatrequests.StartStreamRequest
	if err := reqCtx.ShouldBindJSON(&request); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, requests.BindingMessage(err), "")
		return
	}

	result, err := route.handler.StartStream(reqCtx.Request.Context(), request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to start stream session")
		return
	}
	reqCtx.JSON(http.StatusCreated, result)
}

// GetStream
// @Summary Attach to a stream session
// @Description Streams the generation as Server Sent Events: token, complete and error events plus ": ping" comments.
// @Tags Chat Stream API
// @Produce text/event-stream
// @Param session_id path string true "Session ID"
// @Success 200 {string} string "event: token\ndata: {\"token\":\"...\",\"messageId\":1,\"sessionId\":\"...\"}"
// @Failure 404 {object} responses.ErrorResponse "Unknown or expired session"
// @Failure 409 {object} responses.ErrorResponse "Session already attached"
// @Router /v1/chat/stream/{session_id} [get]
func (route *StreamRoute) GetStream(reqCtx *gin.Context) {
	sessionID := strings.TrimSpace(reqCtx.Param("session_id"))
	if err := route.handler.AttachStream(reqCtx, sessionID); err != nil {
		responses.HandleError(reqCtx, err, "failed to attach to stream session")
		return
	}
	log.Debug().Str("session_id", sessionID).Msg("stream closed")
}

// PostCancel
// @Summary Cancel a stream session
// @Description Stops a running generation. Content generated so far is kept.
// @Tags Chat Stream API
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} chatresponses.CancelStreamResponse
// @Failure 404 {object} responses.ErrorResponse "Unknown or finished session"
// @Router /v1/chat/stream/{session_id}/cancel [post]
func (route *StreamRoute) PostCancel(reqCtx *gin.Context) {
	sessionID := strings.TrimSpace(reqCtx.Param("session_id"))
	if !route.handler.CancelStream(reqCtx.Request.Context(), sessionID) {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "session not found", "")
		return
	}
	reqCtx.JSON(http.StatusOK, chatresponses.CancelStreamResponse{Status: "cancelled"})
}

// GetStatus
// @Summary Get stream session status
// @Tags Chat Stream API
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} streaming.StatusView
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/chat/stream/{session_id}/status [get]
func (route *StreamRoute) GetStatus(reqCtx *gin.Context) {
	status, ok := route.handler.StreamStatus(strings.TrimSpace(reqCtx.Param("session_id")))
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "session not found", "")
		return
	}
	reqCtx.JSON(http.StatusOK, status)
}
