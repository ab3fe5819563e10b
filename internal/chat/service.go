package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/db/models"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/metrics"
	"github.com/noorbazaar/storefront-backend/pkg/pagination"
	"gorm.io/gorm"
)

const (
	originCustomer = "customer"
	originStaff    = "staff"
)

// ChangeEvent is published on a conversation's channel after every accepted
// message. Subscribers reload the full feed instead of merging deltas.
type ChangeEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	FromStaff      bool   `json:"from_staff"`
	Muted          bool   `json:"muted"`
}

type feedPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
	ConversationChannel(conversationID string) string
}

// Service exposes the support conversation operations.
type Service interface {
	StartConversation(ctx context.Context, input StartConversationInput) (*models.Conversation, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*models.SupportMessage, error)
	SendAdminReply(ctx context.Context, conversationID, body string) (*models.SupportMessage, error)
	History(ctx context.Context, conversationID string) ([]models.SupportMessage, error)
	HistoryPage(ctx context.Context, conversationID string, params pagination.Params) ([]models.SupportMessage, string, error)
	MarkAsRead(ctx context.Context, messageID uuid.UUID)
	MarkConversationRead(ctx context.Context, conversationID string, staffViewer bool)
	UnreadCount(ctx context.Context, conversationID string, forStaff bool) (int64, error)
	SetNotificationsMuted(ctx context.Context, conversationID string, muted bool) error
}

type service struct {
	repo      Repository
	publisher feedPublisher
	cfg       config.ChatConfig
	logg      *logger.Logger
	metrics   *metrics.ChatMetrics
}

// NewService builds a chat service backed by the provided stack.
func NewService(repo Repository, publisher feedPublisher, cfg config.ChatConfig, logg *logger.Logger, chatMetrics *metrics.ChatMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("chat repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("feed publisher required")
	}
	if cfg.AdminDisplayName == "" {
		return nil, fmt.Errorf("admin display name required")
	}
	return &service{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logg:      logg,
		metrics:   chatMetrics,
	}, nil
}

// StartConversationInput identifies the customer opening a conversation.
type StartConversationInput struct {
	ConversationID string
	CustomerName   string
	CustomerEmail  *string
}

// StartConversation registers (or resumes) a conversation. A blank id gets a
// fresh one so the client can persist it and pick the session back up later.
func (s *service) StartConversation(ctx context.Context, input StartConversationInput) (*models.Conversation, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	id := strings.TrimSpace(input.ConversationID)
	if id == "" {
		id = uuid.NewString()
	}
	conversation, err := s.repo.UpsertConversation(ctx, &models.Conversation{
		ID:            id,
		CustomerName:  name,
		CustomerEmail: normalizeEmail(input.CustomerEmail),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "starting conversation")
	}
	return conversation, nil
}

// SendMessageInput is a customer-origin message payload.
type SendMessageInput struct {
	ConversationID string
	Body           string
	SenderName     string
	SenderEmail    *string
	SenderUserID   *string
}

// SendMessage appends a customer message to the feed and notifies subscribers.
// Blank bodies and missing conversations are rejected before any insert.
func (s *service) SendMessage(ctx context.Context, input SendMessageInput) (*models.SupportMessage, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}
	senderName := strings.TrimSpace(input.SenderName)
	if senderName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender name is required")
	}
	conversation, err := s.loadConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}

	message, err := s.repo.CreateMessage(ctx, &models.SupportMessage{
		ConversationID: conversation.ID,
		SenderName:     senderName,
		SenderEmail:    normalizeEmail(input.SenderEmail),
		SenderUserID:   input.SenderUserID,
		Body:           body,
		IsStaff:        false,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing message")
	}
	s.metrics.IncMessage(originCustomer)
	s.notifyChange(ctx, conversation, message)
	return message, nil
}

// SendAdminReply appends a staff message under the configured support name.
func (s *service) SendAdminReply(ctx context.Context, conversationID, body string) (*models.SupportMessage, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	message, err := s.repo.CreateMessage(ctx, &models.SupportMessage{
		ConversationID: conversation.ID,
		SenderName:     s.cfg.AdminDisplayName,
		Body:           trimmed,
		IsStaff:        true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing reply")
	}
	s.metrics.IncMessage(originStaff)
	s.notifyChange(ctx, conversation, message)
	return message, nil
}

// History returns the conversation's full feed, oldest first.
func (s *service) History(ctx context.Context, conversationID string) ([]models.SupportMessage, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation id is required")
	}
	messages, err := s.repo.ListMessages(ctx, id, s.cfg.HistoryLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading history")
	}
	return messages, nil
}

// HistoryPage walks the feed newest-first for admin views.
func (s *service) HistoryPage(ctx context.Context, conversationID string, params pagination.Params) ([]models.SupportMessage, string, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "conversation id is required")
	}
	messages, next, err := s.repo.ListMessagesPage(ctx, id, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "loading history page")
	}
	return messages, next, nil
}

// MarkAsRead is a best-effort flag flip, failures are logged and swallowed.
func (s *service) MarkAsRead(ctx context.Context, messageID uuid.UUID) {
	if messageID == uuid.Nil {
		return
	}
	if err := s.repo.MarkMessageRead(ctx, messageID); err != nil {
		s.warn(ctx, "mark-as-read failed", err)
	}
}

// MarkConversationRead clears the viewer's unread counter. Staff viewers mark
// customer messages read and vice versa.
func (s *service) MarkConversationRead(ctx context.Context, conversationID string, staffViewer bool) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return
	}
	if _, err := s.repo.MarkMessagesRead(ctx, id, !staffViewer); err != nil {
		s.warn(ctx, "mark-conversation-read failed", err)
	}
}

// UnreadCount reports how many messages await the given viewer.
func (s *service) UnreadCount(ctx context.Context, conversationID string, forStaff bool) (int64, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "conversation id is required")
	}
	count, err := s.repo.CountUnread(ctx, id, !forStaff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting unread")
	}
	return count, nil
}

// SetNotificationsMuted toggles the new-message sound/toast flag.
func (s *service) SetNotificationsMuted(ctx context.Context, conversationID string, muted bool) error {
	if _, err := s.loadConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.repo.SetNotificationsMuted(ctx, strings.TrimSpace(conversationID), muted); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating notification flag")
	}
	return nil
}

func (s *service) loadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation id is required")
	}
	conversation, err := s.repo.FindConversation(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading conversation")
	}
	return conversation, nil
}

// notifyChange fans the event out on the conversation channel. Delivery is
// best-effort, the feed itself stays consistent through full reloads.
func (s *service) notifyChange(ctx context.Context, conversation *models.Conversation, message *models.SupportMessage) {
	payload, err := json.Marshal(ChangeEvent{
		ConversationID: conversation.ID,
		MessageID:      message.ID.String(),
		FromStaff:      message.IsStaff,
		Muted:          conversation.NotificationsMuted,
	})
	if err != nil {
		s.warn(ctx, "change event encode failed", err)
		return
	}
	channel := s.publisher.ConversationChannel(conversation.ID)
	if err := s.publisher.Publish(ctx, channel, string(payload)); err != nil {
		s.warn(ctx, "change event publish failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	trimmed := strings.TrimSpace(strings.ToLower(*email))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
