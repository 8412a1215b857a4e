package chat

// StartStreamRequest opens a stream session for one user message.
type StartStreamRequest struct {
	ConversationID uint   `json:"conversationId" binding:"required,gt=0"`
	Message        string `json:"message" binding:"required"`
}
