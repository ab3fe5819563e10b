package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/noorbazaar/storefront-backend/pkg/db/models"
	"github.com/noorbazaar/storefront-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository persists conversations and their message feeds.
type Repository interface {
	CreateMessage(ctx context.Context, message *models.SupportMessage) (*models.SupportMessage, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.SupportMessage, error)
	ListMessagesPage(ctx context.Context, conversationID string, params pagination.Params) ([]models.SupportMessage, string, error)
	MarkMessageRead(ctx context.Context, messageID uuid.UUID) error
	MarkMessagesRead(ctx context.Context, conversationID string, fromStaff bool) (int64, error)
	CountUnread(ctx context.Context, conversationID string, fromStaff bool) (int64, error)
	UpsertConversation(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error)
	FindConversation(ctx context.Context, id string) (*models.Conversation, error)
	SetNotificationsMuted(ctx context.Context, id string, muted bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a chat repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateMessage(ctx context.Context, message *models.SupportMessage) (*models.SupportMessage, error) {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages returns the oldest-first feed the storefront renders. The limit
// bounds pathological conversations, zero means "no cap".
func (r *repository) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.SupportMessage, error) {
	var messages []models.SupportMessage
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// ListMessagesPage walks the feed newest-first with a keyset cursor.
func (r *repository) ListMessagesPage(ctx context.Context, conversationID string, params pagination.Params) ([]models.SupportMessage, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}

	var messages []models.SupportMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(messages) > limit {
		messages = messages[:limit]
		last := messages[len(messages)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return messages, nextCursor, nil
}

// MarkMessageRead flips one message's read flag. Already read rows keep their
// original timestamp.
func (r *repository) MarkMessageRead(ctx context.Context, messageID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SupportMessage{}).
		Where("id = ? AND read_at IS NULL", messageID).
		Update("read_at", time.Now().UTC()).Error
}

// MarkMessagesRead stamps every unread message from the given origin. Already
// read rows keep their original timestamp.
func (r *repository) MarkMessagesRead(ctx context.Context, conversationID string, fromStaff bool) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SupportMessage{}).
		Where("conversation_id = ? AND is_staff = ? AND read_at IS NULL", conversationID, fromStaff).
		Update("read_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

func (r *repository) CountUnread(ctx context.Context, conversationID string, fromStaff bool) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SupportMessage{}).
		Where("conversation_id = ? AND is_staff = ? AND read_at IS NULL", conversationID, fromStaff).
		Count(&count).Error
	return count, err
}

func (r *repository) UpsertConversation(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error) {
	existing, err := r.FindConversation(ctx, conversation.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		updates := map[string]any{
			"customer_name": conversation.CustomerName,
			"updated_at":    time.Now().UTC(),
		}
		if conversation.CustomerEmail != nil {
			updates["customer_email"] = conversation.CustomerEmail
		}
		err := r.db.WithContext(ctx).
			Model(&models.Conversation{}).
			Where("id = ?", conversation.ID).
			Updates(updates).Error
		if err != nil {
			return nil, err
		}
		return r.FindConversation(ctx, conversation.ID)
	}
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, err
	}
	return conversation, nil
}

func (r *repository) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *repository) SetNotificationsMuted(ctx context.Context, id string, muted bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"notifications_muted": muted,
			"updated_at":          time.Now().UTC(),
		}).Error
}
