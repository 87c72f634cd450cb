package store

import (
	"context"
	"fmt"
)

const chatColumns = `id, item_id, claim_id, finder_id, claimant_id, status,
	last_message_text, last_message_sender, last_message_at, unread_count, created_at, updated_at`

func scanChat(row rowScanner) (Chat, error) {
	var c Chat
	err := row.Scan(
		&c.ID, &c.ItemID, &c.ClaimID, &c.FinderID, &c.ClaimantID, &c.Status,
		&c.LastMessageText, &c.LastMessageSender, &c.LastMessageAt, &c.UnreadCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, id))
}

func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE finder_id=$1 OR claimant_id=$1
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, chatID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, body, is_system, created_at
		FROM chat_messages WHERE chat_id=$1 ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.System, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendChatMessage inserts a message and rolls the chat's last-message
// summary and unread counter forward in the same transaction.
func (s *PostgresStore) AppendChatMessage(ctx context.Context, msg ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, body, is_system)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Body, msg.System)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE chats SET last_message_text=$2, last_message_sender=$3, last_message_at=NOW(),
			unread_count=unread_count+1, updated_at=NOW()
		WHERE id=$1
	`, msg.ChatID, msg.Body, msg.SenderID)
	if err != nil {
		return fmt.Errorf("update chat summary: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) MarkChatRead(ctx context.Context, chatID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET unread_count=0, updated_at=NOW()
		WHERE id=$1 AND (finder_id=$2 OR claimant_id=$2)
	`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("mark chat read: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
