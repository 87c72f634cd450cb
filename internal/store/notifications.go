package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, item_id, item_title, claim_id, chat_id, approved, read, created_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notes []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.ItemID, &n.ItemTitle, &n.ClaimID,
			&n.ChatID, &n.Approved, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) ListAdminNotifications(ctx context.Context, status string) ([]AdminNotification, error) {
	query := `
		SELECT id, type, item_id, claim_id, status, resolved_by, resolved_at, created_at
		FROM admin_notifications`
	var args []any
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list admin notifications: %w", err)
	}
	defer rows.Close()

	var notes []AdminNotification
	for rows.Next() {
		var n AdminNotification
		if err := rows.Scan(&n.ID, &n.Type, &n.ItemID, &n.ClaimID, &n.Status,
			&n.ResolvedBy, &n.ResolvedAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) ResolveAdminNotification(ctx context.Context, id, status, resolvedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE admin_notifications SET status=$2, resolved_by=$3, resolved_at=NOW()
		WHERE id=$1 AND status='pending'
	`, id, status, resolvedBy)
	if err != nil {
		return false, fmt.Errorf("resolve admin notification: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
