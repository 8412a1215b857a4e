package conversationhandler

import (
	"context"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	conversationrequests "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/requests/conversation"
	conversationresponses "github.com/janhq/chat-stream-api/internal/interfaces/httpserver/responses/conversation"
)

type ConversationService interface {
	CreateConversation(ctx context.Context, title string) (*conversation.Conversation, error)
	ListMessages(ctx context.Context, conversationID uint, limit int) ([]*conversation.Message, error)
}

type ConversationHandler struct {
	service ConversationService
}

func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) CreateConversation(ctx context.Context, req conversationrequests.CreateConversationRequest) (*conversation.Conversation, error) {
	return h.service.CreateConversation(ctx, req.Title)
}

func (h *ConversationHandler) ListMessages(ctx context.Context, conversationID uint, query conversationrequests.ListMessagesQuery) (*conversationresponses.MessageListResponse, error) {
	messages, err := h.service.ListMessages(ctx, conversationID, query.Limit)
	if err != nil {
		return nil, err
	}
	resp := conversationresponses.NewMessageListResponse(conversationID, messages)
	return &resp, nil
}
