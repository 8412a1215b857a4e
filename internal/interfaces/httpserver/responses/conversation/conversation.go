package conversation

import "github.com/janhq/chat-stream-api/internal/domain/conversation"

type MessageListResponse struct {
	Object         string                  `json:"object"`
	ConversationID uint                    `json:"conversationId"`
	Data           []*conversation.Message `json:"data"`
}

func NewMessageListResponse(conversationID uint, messages []*conversation.Message) MessageListResponse {
	if messages == nil {
		messages = []*conversation.Message{}
	}
	return MessageListResponse{Object: "list", ConversationID: conversationID, Data: messages}
}
