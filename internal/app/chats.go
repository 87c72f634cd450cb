package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"findr/api/internal/store"
	"findr/api/internal/util"
)

// ListChats returns every chat the caller participates in, most recent
// activity first.
func (s *Service) ListChats(ctx context.Context, session Session) ([]store.Chat, error) {
	return s.store.ListChatsForUser(ctx, session.UserID)
}

// Chat returns one chat thread. Participants and admins only.
func (s *Service) Chat(ctx context.Context, session Session, chatID string) (store.Chat, error) {
	return s.chatForMember(ctx, session, chatID)
}

// ChatMessages returns the full transcript of one chat. Participants only.
func (s *Service) ChatMessages(ctx context.Context, session Session, chatID string) ([]store.ChatMessage, error) {
	chat, err := s.chatForMember(ctx, session, chatID)
	if err != nil {
		return nil, err
	}
	return s.store.ListChatMessages(ctx, chat.ID)
}

// SendChatMessage appends a message. The chat stays locked until the claim
// behind it is approved.
func (s *Service) SendChatMessage(ctx context.Context, session Session, chatID, body string) (store.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.ChatMessage{}, validationError("message body is required", nil)
	}

	chat, err := s.chatForMember(ctx, session, chatID)
	if err != nil {
		return store.ChatMessage{}, err
	}
	if chat.Status != store.ChatStatusActive {
		return store.ChatMessage{}, invalidStateError("chat unlocks once the claim is approved")
	}

	msg := store.ChatMessage{
		ID:       util.NewID("msg"),
		ChatID:   chat.ID,
		SenderID: session.UserID,
		Body:     body,
	}
	if err := s.store.AppendChatMessage(ctx, msg); err != nil {
		return store.ChatMessage{}, err
	}
	return msg, nil
}

// MarkChatRead clears the unread counter for the caller.
func (s *Service) MarkChatRead(ctx context.Context, session Session, chatID string) error {
	if _, err := s.chatForMember(ctx, session, chatID); err != nil {
		return err
	}
	found, err := s.store.MarkChatRead(ctx, chatID, session.UserID)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("chat not found")
	}
	return nil
}

func (s *Service) chatForMember(ctx context.Context, session Session, chatID string) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Chat{}, notFoundError("chat not found")
		}
		return store.Chat{}, err
	}
	if chat.FinderID != session.UserID && chat.ClaimantID != session.UserID && session.Role != "admin" {
		return store.Chat{}, forbiddenError()
	}
	return chat, nil
}

// Notifications lists the caller's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, session Session) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, session.UserID)
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, session Session, id string) error {
	found, err := s.store.MarkNotificationRead(ctx, id, session.UserID)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("notification not found")
	}
	return nil
}
