package conversation

import "context"

// Repository is the storage collaborator used by the streaming core.
type Repository interface {
	ConversationExists(ctx context.Context, conversationID uint) (bool, error)
	CreateMessage(ctx context.Context, conversationID uint, role Role, content string) (*Message, error)
	UpdateMessageContentAndMetadata(ctx context.Context, messageID uint, content string, metadata GenerationMetadata) error
	// GetBoundedHistory returns at most maxTurns non-empty turns in
	// chronological order, never including excludeMessageID.
	GetBoundedHistory(ctx context.Context, conversationID uint, maxTurns int, excludeMessageID uint) ([]Turn, error)
}

// ConversationRepository covers the conversation CRUD used by the HTTP API.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *Conversation) error
	ListMessages(ctx context.Context, conversationID uint, limit int) ([]*Message, error)
}
