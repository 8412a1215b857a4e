package conversation

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers/conversationhandler"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests"
	conversationrequests "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/conversation"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

type ConversationRoute struct {
	handler *conversationhandler.ConversationHandler
}

func NewConversationRoute(handler *conversationhandler.ConversationHandler) *ConversationRoute {
	return &ConversationRoute{handler: handler}
}

func (route *ConversationRoute) RegisterRouter(router *gin.RouterGroup) {
	conversations := router.Group("/conversations")
	conversations.POST("", route.PostConversation)
	conversations.GET("/:conversation_id/messages", route.GetMessages)
}

// PostConversation
// @Summary Create a conversation
// @Tags Conversations API
// @Accept json
// @Produce json
// @Param request body conversationrequests.CreateConversationRequest false "Optional title"
// @Success 201 {object} conversation.Conversation
// @Failure 400 {object} responses.ErrorResponse
// @Router /v1/conversations [post]
func (route *ConversationRoute) PostConversation(reqCtx *gin.Context) {
	var request conversationrequests.CreateConversationRequest
	// the body is optional
	if err := reqCtx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, requests.BindingMessage(err), "")
		return
	}

	conv, err := route.handler.CreateConversation(reqCtx.Request.Context(), request)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to create conversation")
		return
	}
	reqCtx.JSON(http.StatusCreated, conv)
}

// GetMessages
// @Summary List conversation messages
// @Description Returns the newest messages oldest first, including assistant generation metadata.
// @Tags Conversations API
// @Produce json
// @Param conversation_id path int true "Conversation ID"
// @Param limit query int false "Maximum number of messages (1-500, default 100)"
// @Success 200 {object} conversationresponses.MessageListResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/conversations/{conversation_id}/messages [get]
func (route *ConversationRoute) GetMessages(reqCtx *gin.Context) {
	conversationID, err := strconv.ParseUint(reqCtx.Param("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "conversation_id must be a positive integer", "")
		return
	}

	var query conversationrequests.ListMessagesQuery
	if err := reqCtx.ShouldBindQuery(&query); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, requests.BindingMessage(err), "")
		return
	}

	result, err := route.handler.ListMessages(reqCtx.Request.Context(), uint(conversationID), query)
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list messages")
		return
	}
	reqCtx.JSON(http.StatusOK, result)
}
