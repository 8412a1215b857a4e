package conversationrepo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

// InMemoryRepository is a thread-safe store for local runs and tests.
// Contents are lost on restart.
type InMemoryRepository struct {
	mu            sync.RWMutex
	conversations map[uint]*conversation.Conversation
	messages      []*conversation.Message
	lastConvID    uint
	lastMsgID     uint
	now           func() time.Time
}

var _ conversation.Store = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[uint]*conversation.Conversation),
		now:           time.Now,
	}
}

func (r *InMemoryRepository) CreateConversation(_ context.Context, conv *conversation.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastConvID++
	now := r.now()
	conv.ID = r.lastConvID
	conv.CreatedAt = now
	conv.UpdatedAt = now
	stored := *conv
	r.conversations[conv.ID] = &stored
	return nil
}

func (r *InMemoryRepository) ConversationExists(_ context.Context, conversationID uint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conversations[conversationID]
	return ok, nil
}

func (r *InMemoryRepository) CreateMessage(ctx context.Context, conversationID uint, role conversation.Role, content string) (*conversation.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("conversation not found: %d", conversationID), nil, "")
	}

	r.lastMsgID++
	now := r.now()
	msg := &conversation.Message{
		ID:             r.lastMsgID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if role == conversation.RoleAssistant {
		msg.Metadata.Status = conversation.MessageStatusPending
	}
	r.messages = append(r.messages, msg)
	conv.UpdatedAt = now

	out := *msg
	return &out, nil
}

func (r *InMemoryRepository) UpdateMessageContentAndMetadata(ctx context.Context, messageID uint, content string, metadata conversation.GenerationMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range r.messages {
		if msg.ID == messageID {
			msg.Content = content
			msg.Metadata = metadata
			msg.UpdatedAt = r.now()
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		fmt.Sprintf("message not found: %d", messageID), nil, "")
}

func (r *InMemoryRepository) GetBoundedHistory(_ context.Context, conversationID uint, maxTurns int, excludeMessageID uint) ([]conversation.Turn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var turns []conversation.Turn
	for i := len(r.messages) - 1; i >= 0 && len(turns) < maxTurns; i-- {
		msg := r.messages[i]
		if msg.ConversationID != conversationID || msg.ID == excludeMessageID || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		turns = append(turns, conversation.Turn{Role: msg.Role, Content: msg.Content})
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *InMemoryRepository) ListMessages(_ context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*conversation.Message
	for i := len(r.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if r.messages[i].ConversationID != conversationID {
			continue
		}
		msg := *r.messages[i]
		out = append(out, &msg)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
