package conversation

import (
	"context"
	"strings"

	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

const (
	maxTitleLength      = 256
	DefaultMessageLimit = 100
	MaxMessageLimit     = 500
)

// Store is what Service needs from persistence.
type Store interface {
	Repository
	ConversationRepository
}

// Service implements conversation management outside the streaming path.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if len([]rune(title)) > maxTitleLength {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"title must be at most 256 characters", nil, "")
	}
	if title == "" {
		title = "New conversation"
	}

	conv := &Conversation{Title: title}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	return conv, nil
}

// ListMessages returns messages in chronological order. limit <= 0 selects the
// default, values above MaxMessageLimit are clamped.
func (s *Service) ListMessages(ctx context.Context, conversationID uint, limit int) ([]*Message, error) {
	exists, err := s.store.ConversationExists(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to look up conversation")
	}
	if !exists {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"conversation not found", nil, "")
	}

	switch {
	case limit <= 0:
		limit = DefaultMessageLimit
	case limit > MaxMessageLimit:
		limit = MaxMessageLimit
	}

	messages, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list messages")
	}
	return messages, nil
}
