package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noorbazaar/storefront-backend/api/responses"
	"github.com/noorbazaar/storefront-backend/api/validators"
	"github.com/noorbazaar/storefront-backend/internal/cache"
	chatsvc "github.com/noorbazaar/storefront-backend/internal/chat"
	"github.com/noorbazaar/storefront-backend/internal/chat/presence"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"github.com/noorbazaar/storefront-backend/pkg/pagination"
)

type startConversationRequest struct {
	ConversationID string  `json:"conversation_id"`
	CustomerName   string  `json:"customer_name" validate:"required"`
	CustomerEmail  *string `json:"customer_email" validate:"omitempty,email"`
}

// ChatStart opens or resumes a support conversation.
func ChatStart(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload startConversationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conversation, err := svc.StartConversation(r.Context(), chatsvc.StartConversationInput{
			ConversationID: payload.ConversationID,
			CustomerName:   payload.CustomerName,
			CustomerEmail:  payload.CustomerEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, conversation)
	}
}

type sendMessageRequest struct {
	Body         string  `json:"body" validate:"required"`
	SenderName   string  `json:"sender_name" validate:"required"`
	SenderEmail  *string `json:"sender_email" validate:"omitempty,email"`
	SenderUserID *string `json:"sender_user_id"`
}

// ChatSend appends a customer message to the conversation feed.
func ChatSend(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sendMessageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message, err := svc.SendMessage(r.Context(), chatsvc.SendMessageInput{
			ConversationID: chi.URLParam(r, "conversationID"),
			Body:           payload.Body,
			SenderName:     payload.SenderName,
			SenderEmail:    payload.SenderEmail,
			SenderUserID:   payload.SenderUserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}

type adminReplyRequest struct {
	Body string `json:"body" validate:"required"`
}

// ChatReply appends a staff reply under the configured support display name.
func ChatReply(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload adminReplyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		message, err := svc.SendAdminReply(r.Context(), chi.URLParam(r, "conversationID"), payload.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}

// ChatHistory returns the full ordered feed for one conversation.
func ChatHistory(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "conversationID")

		if cursor := r.URL.Query().Get("cursor"); cursor != "" || r.URL.Query().Get("limit") != "" {
			limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			messages, next, err := svc.HistoryPage(r.Context(), conversationID, pagination.Params{
				Limit:  limit,
				Cursor: cursor,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{
				"messages":    messages,
				"next_cursor": next,
			})
			return
		}

		messages, err := svc.History(r.Context(), conversationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"messages": messages})
	}
}

// ChatMarkRead flips one message's read flag. Always succeeds from the
// caller's perspective.
func ChatMarkRead(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid message id"))
			return
		}

		svc.MarkAsRead(r.Context(), messageID)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// ChatMarkConversationRead clears the viewer's unread counter.
func ChatMarkConversationRead(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffViewer := r.URL.Query().Get("viewer") == "staff"
		svc.MarkConversationRead(r.Context(), chi.URLParam(r, "conversationID"), staffViewer)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// unreadCacheTTL bounds how stale a polled unread counter can get.
const unreadCacheTTL = 15 * time.Second

type unreadCounter interface {
	UnreadCount(ctx context.Context, conversationID string, forStaff bool) (int64, error)
}

// ChatUnread reports the unread counter for one viewer. The admin inbox polls
// this endpoint, so counts are answered from the TTL cache when fresh.
func ChatUnread(svc unreadCounter, counts *cache.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := "customer"
		if r.URL.Query().Get("viewer") == "staff" {
			viewer = "staff"
		}
		conversationID := chi.URLParam(r, "conversationID")
		cacheKey := "unread:" + conversationID + ":" + viewer

		var count int64
		if counts != nil && counts.Get(r.Context(), cacheKey, &count) {
			responses.WriteSuccess(w, map[string]int64{"unread": count})
			return
		}

		count, err := svc.UnreadCount(r.Context(), conversationID, viewer == "staff")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if counts != nil {
			counts.Set(r.Context(), cacheKey, count, unreadCacheTTL)
		}
		responses.WriteSuccess(w, map[string]int64{"unread": count})
	}
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// ChatMute toggles new-message notifications for a conversation.
func ChatMute(svc chatsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload muteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetNotificationsMuted(r.Context(), chi.URLParam(r, "conversationID"), payload.Muted); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"muted": payload.Muted})
	}
}

type typingRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Typing bool   `json:"typing"`
}

// ChatTyping publishes or retracts a typing signal.
func ChatTyping(tracker *presence.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload typingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conversationID := chi.URLParam(r, "conversationID")
		var err error
		if payload.Typing {
			err = tracker.StartTyping(r.Context(), conversationID, payload.UserID)
		} else {
			err = tracker.StopTyping(r.Context(), conversationID, payload.UserID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating typing signal"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// ChatTypingStatus reports whether anyone besides the caller is typing.
func ChatTypingStatus(tracker *presence.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typing, err := tracker.AnyoneTyping(r.Context(), chi.URLParam(r, "conversationID"), r.URL.Query().Get("self"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading typing signal"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"typing": typing})
	}
}

type presenceTrackRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" validate:"required,oneof=customer staff"`
	Online      bool   `json:"online"`
}

// PresenceTrack registers, refreshes, or removes an online record.
func PresenceTrack(tracker *presence.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload presenceTrackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var err error
		if payload.Online {
			err = tracker.Track(r.Context(), payload.UserID, payload.DisplayName, payload.Role)
		} else {
			err = tracker.Untrack(r.Context(), payload.UserID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating presence"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type presenceHeartbeatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// PresenceHeartbeat extends a live online record without rewriting it.
// Clients send it on a fixed timer between Track calls; a record that has
// already expired stays gone until the next full Track.
func PresenceHeartbeat(tracker *presence.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload presenceHeartbeatRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := tracker.Refresh(r.Context(), payload.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refreshing presence"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// PresenceStatus reports the role-level online checks the chat widget shows.
func PresenceStatus(tracker *presence.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffOnline, err := tracker.IsStaffOnline(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading presence"))
			return
		}
		customerOnline, err := tracker.IsCustomerOnline(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading presence"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{
			"staff_online":    staffOnline,
			"customer_online": customerOnline,
		})
	}
}
