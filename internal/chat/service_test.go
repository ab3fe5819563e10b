package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/noorbazaar/storefront-backend/pkg/config"
	"github.com/noorbazaar/storefront-backend/pkg/db/models"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/pagination"
	"gorm.io/gorm"
)

type stubRepo struct {
	conversation *models.Conversation
	findErr      error
	createErr    error
	created      []*models.SupportMessage
	messages     []models.SupportMessage
	markReadIDs  []uuid.UUID
	markReadErr  error
	bulkReadFrom []bool
	unread       int64
	mutedSet     *bool
}

func (s *stubRepo) CreateMessage(ctx context.Context, message *models.SupportMessage) (*models.SupportMessage, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	s.created = append(s.created, message)
	return message, nil
}

func (s *stubRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.SupportMessage, error) {
	return s.messages, nil
}

func (s *stubRepo) ListMessagesPage(ctx context.Context, conversationID string, params pagination.Params) ([]models.SupportMessage, string, error) {
	return s.messages, "", nil
}

func (s *stubRepo) MarkMessageRead(ctx context.Context, messageID uuid.UUID) error {
	if s.markReadErr != nil {
		return s.markReadErr
	}
	s.markReadIDs = append(s.markReadIDs, messageID)
	return nil
}

func (s *stubRepo) MarkMessagesRead(ctx context.Context, conversationID string, fromStaff bool) (int64, error) {
	s.bulkReadFrom = append(s.bulkReadFrom, fromStaff)
	return 1, nil
}

func (s *stubRepo) CountUnread(ctx context.Context, conversationID string, fromStaff bool) (int64, error) {
	return s.unread, nil
}

func (s *stubRepo) UpsertConversation(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error) {
	s.conversation = conversation
	return conversation, nil
}

func (s *stubRepo) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.conversation == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.conversation, nil
}

func (s *stubRepo) SetNotificationsMuted(ctx context.Context, id string, muted bool) error {
	s.mutedSet = &muted
	return nil
}

type stubPublisher struct {
	channels []string
	payloads []any
	err      error
}

func (s *stubPublisher) Publish(ctx context.Context, channel string, payload any) error {
	if s.err != nil {
		return s.err
	}
	s.channels = append(s.channels, channel)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubPublisher) ConversationChannel(conversationID string) string {
	return "chan:" + conversationID
}

func chatConfig() config.ChatConfig {
	return config.ChatConfig{AdminDisplayName: "پشتیبانی", HistoryLimit: 200}
}

func newTestService(t *testing.T, repo Repository, publisher *stubPublisher) Service {
	t.Helper()
	svc, err := NewService(repo, publisher, chatConfig(), nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(nil, &stubPublisher{}, chatConfig(), nil, nil); err == nil {
		t.Fatal("expected error creating service without repo")
	}
}

func TestSendMessageRejectsBlankBody(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{})

	for _, body := range []string{"", "   ", "\n\t "} {
		_, err := svc.SendMessage(context.Background(), SendMessageInput{
			ConversationID: "conv-1",
			Body:           body,
			SenderName:     "مریم",
		})
		if err == nil {
			t.Fatalf("body %q: expected validation error", body)
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("body %q: expected validation code, got %v", body, err)
		}
	}
	if len(repo.created) != 0 {
		t.Fatalf("blank bodies must not insert, got %d inserts", len(repo.created))
	}
}

func TestSendMessageRequiresConversation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, &stubPublisher{})

	_, err := svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "missing",
		Body:           "سلام",
		SenderName:     "مریم",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("missing conversation must not insert")
	}
}

func TestSendMessagePersistsAndNotifies(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, publisher)

	email := "  Maryam@Example.IR "
	message, err := svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		Body:           "  سفارش من کی میرسه؟  ",
		SenderName:     "مریم",
		SenderEmail:    &email,
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if message.IsStaff {
		t.Fatal("customer message must not be staff-tagged")
	}
	if message.Body != "سفارش من کی میرسه؟" {
		t.Fatalf("body not trimmed: %q", message.Body)
	}
	if message.SenderEmail == nil || *message.SenderEmail != "maryam@example.ir" {
		t.Fatalf("email not normalized: %v", message.SenderEmail)
	}
	if len(publisher.channels) != 1 || publisher.channels[0] != "chan:conv-1" {
		t.Fatalf("expected one change event on conv channel, got %v", publisher.channels)
	}
}

func TestSendMessageSurvivesPublishFailure(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{err: errors.New("redis down")})

	_, err := svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		Body:           "پیام",
		SenderName:     "مریم",
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the send: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected insert despite publish failure, got %d", len(repo.created))
	}
}

func TestSendAdminReplyUsesFixedName(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{})

	message, err := svc.SendAdminReply(context.Background(), "conv-1", "در حال بررسی هستیم")
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if !message.IsStaff {
		t.Fatal("admin reply must be staff-tagged")
	}
	if message.SenderName != "پشتیبانی" {
		t.Fatalf("expected configured display name, got %q", message.SenderName)
	}
}

func TestSendAdminReplyRejectsBlankBody(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{})

	if _, err := svc.SendAdminReply(context.Background(), "conv-1", "   "); err == nil {
		t.Fatal("expected validation error")
	}
	if len(repo.created) != 0 {
		t.Fatal("blank reply must not insert")
	}
}

func TestStartConversationGeneratesID(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, &stubPublisher{})

	conversation, err := svc.StartConversation(context.Background(), StartConversationInput{
		CustomerName: "مریم",
	})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	if conversation.ID == "" {
		t.Fatal("expected generated conversation id")
	}
	if _, err := uuid.Parse(conversation.ID); err != nil {
		t.Fatalf("generated id not a uuid: %v", err)
	}
}

func TestStartConversationKeepsProvidedID(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, &stubPublisher{})

	conversation, err := svc.StartConversation(context.Background(), StartConversationInput{
		ConversationID: "resumed-session",
		CustomerName:   "مریم",
	})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	if conversation.ID != "resumed-session" {
		t.Fatalf("expected resumed id, got %q", conversation.ID)
	}
}

func TestMarkAsReadSwallowsFailure(t *testing.T) {
	repo := &stubRepo{markReadErr: errors.New("db down")}
	svc := newTestService(t, repo, &stubPublisher{})

	svc.MarkAsRead(context.Background(), uuid.New())
	svc.MarkAsRead(context.Background(), uuid.Nil)
	if len(repo.markReadIDs) != 0 {
		t.Fatal("stub should have rejected both calls")
	}
}

func TestMarkConversationReadTargetsOtherOrigin(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{})

	svc.MarkConversationRead(context.Background(), "conv-1", true)
	svc.MarkConversationRead(context.Background(), "conv-1", false)

	if len(repo.bulkReadFrom) != 2 {
		t.Fatalf("expected 2 bulk updates, got %d", len(repo.bulkReadFrom))
	}
	if repo.bulkReadFrom[0] != false {
		t.Fatal("staff viewer must mark customer messages read")
	}
	if repo.bulkReadFrom[1] != true {
		t.Fatal("customer viewer must mark staff messages read")
	}
}

func TestSetNotificationsMuted(t *testing.T) {
	repo := &stubRepo{conversation: &models.Conversation{ID: "conv-1"}}
	svc := newTestService(t, repo, &stubPublisher{})

	if err := svc.SetNotificationsMuted(context.Background(), "conv-1", true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if repo.mutedSet == nil || !*repo.mutedSet {
		t.Fatal("mute flag not persisted")
	}
}
