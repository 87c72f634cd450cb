package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const claimColumns = `id, item_id, item_title, claimant_id, claimant_name, claimant_email,
	finder_id, finder_name, status, description, proof_images, chat_id, rejection_reason,
	processed_by, processed_at, created_at, updated_at`

func scanClaim(row rowScanner) (Claim, error) {
	var c Claim
	var proofImages []byte
	err := row.Scan(
		&c.ID, &c.ItemID, &c.ItemTitle, &c.ClaimantID, &c.ClaimantName, &c.ClaimantEmail,
		&c.FinderID, &c.FinderName, &c.Status, &c.Description, &proofImages, &c.ChatID,
		&c.RejectionReason, &c.ProcessedBy, &c.ProcessedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Claim{}, err
	}
	if err := json.Unmarshal(proofImages, &c.ProofImages); err != nil {
		return Claim{}, fmt.Errorf("decode proof images: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (Claim, error) {
	return scanClaim(s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id=$1`, id))
}

func (s *PostgresStore) ListClaimsByClaimant(ctx context.Context, userID string) ([]Claim, error) {
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE claimant_id=$1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) ListPendingClaims(ctx context.Context) ([]Claim, error) {
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE status='pending' ORDER BY created_at ASC`)
}

func (s *PostgresStore) queryClaims(ctx context.Context, query string, args ...any) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (s *PostgresStore) PendingClaimExists(ctx context.Context, itemID, claimantID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM claims WHERE item_id=$1 AND claimant_id=$2 AND status='pending')
	`, itemID, claimantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending claim: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) PendingItemIDsForClaimant(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id FROM claims WHERE claimant_id=$1 AND status='pending'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("pending item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimBundle is everything submitClaim writes: the claim, its chat thread
// seeded with one system message, the admin queue entry, and the finder's
// notification. All rows commit or none do.
type ClaimBundle struct {
	Claim       Claim
	Chat        Chat
	SeedMessage ChatMessage
	AdminNote   AdminNotification
	FinderNote  Notification
	// MarkItemPending flips the item's claim_status under the single-claim
	// policy so the feed can block further claimants immediately.
	MarkItemPending bool
}

func (s *PostgresStore) InsertClaimBundle(ctx context.Context, bundle ClaimBundle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claim := bundle.Claim
	_, err = tx.ExecContext(ctx, `
		INSERT INTO claims (id, item_id, item_title, claimant_id, claimant_name, claimant_email,
			finder_id, finder_name, status, description, proof_images, chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $10, $11)
	`, claim.ID, claim.ItemID, claim.ItemTitle, claim.ClaimantID, claim.ClaimantName,
		claim.ClaimantEmail, claim.FinderID, claim.FinderName, claim.Description,
		encodeStrings(claim.ProofImages), bundle.Chat.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePendingClaim
		}
		return fmt.Errorf("insert claim: %w", err)
	}

	chat := bundle.Chat
	seed := bundle.SeedMessage
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, item_id, claim_id, finder_id, claimant_id, status,
			last_message_text, last_message_sender, last_message_at, unread_count)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, NOW(), 1)
	`, chat.ID, chat.ItemID, claim.ID, chat.FinderID, chat.ClaimantID, seed.Body, seed.SenderID)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, body, is_system)
		VALUES ($1, $2, $3, $4, TRUE)
	`, seed.ID, chat.ID, seed.SenderID, seed.Body)
	if err != nil {
		return fmt.Errorf("insert seed message: %w", err)
	}

	note := bundle.AdminNote
	_, err = tx.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, type, item_id, claim_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
	`, note.ID, note.Type, note.ItemID, claim.ID)
	if err != nil {
		return fmt.Errorf("insert admin notification: %w", err)
	}

	if err := insertNotificationTx(ctx, tx, bundle.FinderNote); err != nil {
		return err
	}

	if bundle.MarkItemPending {
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET claim_status='pending', claim_id=$2, claimant_id=$3, updated_at=NOW()
			WHERE id=$1
		`, claim.ItemID, claim.ID, claim.ClaimantID)
		if err != nil {
			return fmt.Errorf("mark item pending: %w", err)
		}
	}

	return tx.Commit()
}

// ClaimResolution is the admin decision applied to a pending claim together
// with the notifications it fans out.
type ClaimResolution struct {
	ClaimID                string
	Approve                bool
	AdminID                string
	SiblingRejectionReason string
	ClaimantNote           Notification
	FinderNote             Notification
}

// ResolveResult reports what the resolution transaction changed.
type ResolveResult struct {
	Claim            Claim
	RejectedSiblings int
}

// ResolveClaim applies an approve/reject decision in one transaction: the
// claim flips to its terminal status, and on approval every other pending
// claim for the same item is rejected, the item is marked returned, and the
// claim's chat goes active. Returns sql.ErrNoRows for an unknown claim and
// ErrClaimNotPending when the claim was already resolved.
func (s *PostgresStore) ResolveClaim(ctx context.Context, res ClaimResolution) (ResolveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claim, err := scanClaim(tx.QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claims WHERE id=$1 FOR UPDATE
	`, res.ClaimID))
	if err != nil {
		return ResolveResult{}, err
	}
	if claim.Status != ClaimStatusPending {
		return ResolveResult{}, ErrClaimNotPending
	}

	status := ClaimStatusRejected
	if res.Approve {
		status = ClaimStatusApproved
	}
	if err := tx.QueryRowContext(ctx, `
		UPDATE claims SET status=$2, processed_by=$3, processed_at=NOW(), updated_at=NOW()
		WHERE id=$1
		RETURNING processed_at, updated_at
	`, claim.ID, status, res.AdminID).Scan(&claim.ProcessedAt, &claim.UpdatedAt); err != nil {
		return ResolveResult{}, fmt.Errorf("update claim: %w", err)
	}
	claim.Status = status
	claim.ProcessedBy = res.AdminID

	rejected := 0
	if res.Approve {
		result, err := tx.ExecContext(ctx, `
			UPDATE claims SET status='rejected', rejection_reason=$3,
				processed_by=$2, processed_at=NOW(), updated_at=NOW()
			WHERE item_id=$1 AND status='pending'
		`, claim.ItemID, res.AdminID, res.SiblingRejectionReason)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("reject sibling claims: %w", err)
		}
		affected, _ := result.RowsAffected()
		rejected = int(affected)

		_, err = tx.ExecContext(ctx, `
			UPDATE items SET status='returned', claim_status='approved', claim_id=$2,
				claimant_id=$3, returned_to=$3, updated_at=NOW()
			WHERE id=$1
		`, claim.ItemID, claim.ID, claim.ClaimantID)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("mark item returned: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE chats SET status='active', updated_at=NOW() WHERE claim_id=$1
		`, claim.ID)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("activate chat: %w", err)
		}
	} else {
		// Clear the pending marker so the item can take new claims again.
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET claim_status='', claim_id='', claimant_id='', updated_at=NOW()
			WHERE id=$1 AND claim_id=$2
		`, claim.ItemID, claim.ID)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("clear item claim: %w", err)
		}
	}

	if err := insertNotificationTx(ctx, tx, res.ClaimantNote); err != nil {
		return ResolveResult{}, err
	}
	if err := insertNotificationTx(ctx, tx, res.FinderNote); err != nil {
		return ResolveResult{}, err
	}

	// The admin queue entry for this claim follows the decision.
	_, err = tx.ExecContext(ctx, `
		UPDATE admin_notifications SET status=$2, resolved_by=$3, resolved_at=NOW()
		WHERE claim_id=$1 AND status='pending'
	`, claim.ID, status, res.AdminID)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("resolve admin notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ResolveResult{}, fmt.Errorf("commit resolve tx: %w", err)
	}
	return ResolveResult{Claim: claim, RejectedSiblings: rejected}, nil
}

func insertNotificationTx(ctx context.Context, tx *sql.Tx, note Notification) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, item_id, item_title, claim_id, chat_id, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, note.ID, note.UserID, note.Type, note.ItemID, note.ItemTitle, note.ClaimID, note.ChatID, note.Approved)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
