package conversation

import "time"

// Role indicates who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks whether an assistant message has been filled.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusCompleted MessageStatus = "completed"
	MessageStatusCancelled MessageStatus = "cancelled"
	MessageStatusFailed    MessageStatus = "failed"
)

// Conversation is a chat thread.
type Conversation struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single stored turn. Assistant messages start as empty
// placeholders and are filled once generation ends.
type Message struct {
	ID             uint               `json:"id"`
	ConversationID uint               `json:"conversationId"`
	Role           Role               `json:"role"`
	Content        string             `json:"content"`
	Metadata       GenerationMetadata `json:"metadata"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// GenerationMetadata is recorded on assistant messages when generation ends.
type GenerationMetadata struct {
	TokenCount       int           `json:"tokenCount"`
	Model            string        `json:"model,omitempty"`
	CompletionTimeMs int64         `json:"completionTimeMs"`
	Status           MessageStatus `json:"status,omitempty"`
}

// Turn is the read-only view of a message used to build prompts.
type Turn struct {
	Role    Role
	Content string
}
