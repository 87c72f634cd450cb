package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Users ---

const userColumns = `id, name, email, password_hash, role, verified, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Verified)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) SetUserVerified(ctx context.Context, userID string, verified bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET verified=$2, updated_at=NOW() WHERE id=$1
	`, userID, verified)
	if err != nil {
		return false, fmt.Errorf("set user verified: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// --- Password resets ---

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// --- Access token revocation ---

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- Items ---

const itemColumns = `id, type, title, description, category, location_name, location_lat, location_lng,
	images, posted_by_id, posted_by_name, posted_by_email, status, claim_status, claim_id,
	claimant_id, returned_to, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var images []byte
	err := row.Scan(
		&item.ID, &item.Type, &item.Title, &item.Description, &item.Category,
		&item.Location.Name, &item.Location.Lat, &item.Location.Lng,
		&images, &item.PostedByID, &item.PostedByName, &item.PostedByEmail,
		&item.Status, &item.ClaimStatus, &item.ClaimID,
		&item.ClaimantID, &item.ReturnedTo, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Item{}, err
	}
	if err := json.Unmarshal(images, &item.Images); err != nil {
		return Item{}, fmt.Errorf("decode item images: %w", err)
	}
	return item, nil
}

func encodeStrings(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	encoded, _ := json.Marshal(values)
	return encoded
}

func (s *PostgresStore) InsertItem(ctx context.Context, item Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, type, title, description, category, location_name, location_lat,
			location_lng, images, posted_by_id, posted_by_name, posted_by_email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, item.ID, item.Type, item.Title, item.Description, item.Category,
		item.Location.Name, item.Location.Lat, item.Location.Lng,
		encodeStrings(item.Images), item.PostedByID, item.PostedByName, item.PostedByEmail, item.Status)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// InsertItemWithAdminNote inserts a found report together with its
// verification queue entry. Both commit or neither does, so an unverified
// item can never be invisible to the admin dashboard.
func (s *PostgresStore) InsertItemWithAdminNote(ctx context.Context, item Item, note AdminNotification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item report tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, type, title, description, category, location_name, location_lat,
			location_lng, images, posted_by_id, posted_by_name, posted_by_email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, item.ID, item.Type, item.Title, item.Description, item.Category,
		item.Location.Name, item.Location.Lat, item.Location.Lng,
		encodeStrings(item.Images), item.PostedByID, item.PostedByName, item.PostedByEmail, item.Status)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, type, item_id, status)
		VALUES ($1, $2, $3, 'pending')
	`, note.ID, note.Type, item.ID)
	if err != nil {
		return fmt.Errorf("insert admin notification: %w", err)
	}

	return tx.Commit()
}

// MarkItemVerified publishes a pending_verification item as found and closes
// its open verification queue entries. Returns false when the item is not
// awaiting verification.
func (s *PostgresStore) MarkItemVerified(ctx context.Context, itemID, adminID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin verify item tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE items SET status='found', updated_at=NOW()
		WHERE id=$1 AND status='pending_verification'
	`, itemID)
	if err != nil {
		return false, fmt.Errorf("verify item: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE admin_notifications SET status='approved', resolved_by=$2, resolved_at=NOW()
		WHERE item_id=$1 AND type='verification_needed' AND status='pending'
	`, itemID, adminID)
	if err != nil {
		return false, fmt.Errorf("resolve verification notifications: %w", err)
	}

	return true, tx.Commit()
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var conditions []string
	var args []any
	switch {
	case len(filter.Statuses) > 0:
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	case filter.Status != "":
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category=$%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListItemsByPoster(ctx context.Context, userID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE posted_by_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items by poster: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateItem(ctx context.Context, id string, upd ItemUpdate) (bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.Images != nil {
		add("images", encodeStrings(*upd.Images))
	}
	if upd.Location != nil {
		add("location_name", upd.Location.Name)
		add("location_lat", upd.Location.Lat)
		add("location_lng", upd.Location.Lng)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return false, fmt.Errorf("update item: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
