package chat

import "github.com/janhq/chat-stream-api/internal/domain/streaming"

type StartStreamResponse struct {
	SessionID     string `json:"sessionId"`
	MessageID     uint   `json:"messageId"`
	UserMessageID uint   `json:"userMessageId"`
}

func NewStartStreamResponse(res *streaming.StartResult) StartStreamResponse {
	return StartStreamResponse{
		SessionID:     res.SessionID,
		MessageID:     res.MessageID,
		UserMessageID: res.UserMessageID,
	}
}

type CancelStreamResponse struct {
	Status string `json:"status"`
}
