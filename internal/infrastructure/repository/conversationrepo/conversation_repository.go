package conversationrepo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/infrastructure/database/dbschema"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

// ConversationGormRepository persists conversations and their messages.
type ConversationGormRepository struct {
	db *gorm.DB
}

var _ conversation.Store = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *gorm.DB) *ConversationGormRepository {
	return &ConversationGormRepository{db: db}
}

// CreateConversation implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	if err := repo.db.WithContext(ctx).Create(model).Error; err != nil {
		return dbError(ctx, err, "failed to create conversation")
	}
	conv.ID = model.ID
	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// ConversationExists implements conversation.Repository.
func (repo *ConversationGormRepository) ConversationExists(ctx context.Context, conversationID uint) (bool, error) {
	var count int64
	err := repo.db.WithContext(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return false, dbError(ctx, err, "failed to look up conversation")
	}
	return count > 0, nil
}

// CreateMessage implements conversation.Repository. Assistant messages are
// created as pending placeholders.
func (repo *ConversationGormRepository) CreateMessage(ctx context.Context, conversationID uint, role conversation.Role, content string) (*conversation.Message, error) {
	msg := &conversation.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if role == conversation.RoleAssistant {
		msg.Metadata.Status = conversation.MessageStatusPending
	}

	model, err := dbschema.NewSchemaMessage(msg)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to encode message metadata", err, "")
	}

	err = repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Model(&dbschema.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, dbError(ctx, err, "failed to create message")
	}
	return model.EtoD(), nil
}

// UpdateMessageContentAndMetadata implements conversation.Repository.
func (repo *ConversationGormRepository) UpdateMessageContentAndMetadata(ctx context.Context, messageID uint, content string, metadata conversation.GenerationMetadata) error {
	encoded, err := dbschema.MarshalMetadata(metadata)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to encode message metadata", err, "")
	}

	result := repo.db.WithContext(ctx).
		Model(&dbschema.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"content":    content,
			"metadata":   encoded,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return dbError(ctx, result.Error, "failed to update message")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("message not found: %d", messageID), nil, "")
	}
	return nil
}

// GetBoundedHistory implements conversation.Repository. The newest maxTurns
// non-empty messages are selected and returned oldest first.
func (repo *ConversationGormRepository) GetBoundedHistory(ctx context.Context, conversationID uint, maxTurns int, excludeMessageID uint) ([]conversation.Turn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}

	var rows []dbschema.Message
	err := repo.db.WithContext(ctx).
		Select("id", "role", "content").
		Where("conversation_id = ?", conversationID).
		Where("id <> ?", excludeMessageID).
		Where("BTRIM(content) <> ''").
		Order("id DESC").
		Limit(maxTurns).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(ctx, err, "failed to load conversation history")
	}

	turns := make([]conversation.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = conversation.Turn{Role: conversation.Role(row.Role), Content: row.Content}
	}
	return turns, nil
}

// ListMessages implements conversation.ConversationRepository. It returns the
// newest limit messages oldest first.
func (repo *ConversationGormRepository) ListMessages(ctx context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	var rows []dbschema.Message
	err := repo.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(ctx, err, "failed to list messages")
	}

	messages := make([]*conversation.Message, len(rows))
	for i := range rows {
		messages[len(rows)-1-i] = rows[i].EtoD()
	}
	return messages, nil
}

// FailPendingPlaceholders marks assistant placeholders still pending from
// before cutoff as failed. Sessions live in memory, so at startup every
// pending placeholder has lost its session.
func (repo *ConversationGormRepository) FailPendingPlaceholders(ctx context.Context, cutoff time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&dbschema.Message{}).
		Where("role = ?", string(conversation.RoleAssistant)).
		Where("metadata ->> 'status' = ?", string(conversation.MessageStatusPending)).
		Where("created_at < ?", cutoff).
		Updates(map[string]any{
			"metadata":   gorm.Expr("jsonb_set(metadata, '{status}', to_jsonb(?::text))", string(conversation.MessageStatusFailed)),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, dbError(ctx, result.Error, "failed to fail pending placeholders")
	}
	return result.RowsAffected, nil
}

func dbError(ctx context.Context, err error, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, "")
}
