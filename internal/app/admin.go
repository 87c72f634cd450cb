package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"findr/api/internal/export"
	"findr/api/internal/store"
)

// PendingClaims returns the admin verification queue, oldest first. Claims
// carry the item and party names denormalized at submission so the queue
// renders without joins.
func (s *Service) PendingClaims(ctx context.Context) ([]store.Claim, error) {
	return s.store.ListPendingClaims(ctx)
}

// AdminNotifications lists the admin inbox, optionally filtered by status.
func (s *Service) AdminNotifications(ctx context.Context, status string) ([]store.AdminNotification, error) {
	return s.store.ListAdminNotifications(ctx, status)
}

// ListUsers returns all accounts for the admin dashboard.
func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

// SetUserVerified flips a user's identity verification flag and closes any
// open verification request for them.
func (s *Service) SetUserVerified(ctx context.Context, session Session, userID string, verified bool) (store.User, error) {
	found, err := s.store.SetUserVerified(ctx, userID, verified)
	if err != nil {
		return store.User{}, err
	}
	if !found {
		return store.User{}, notFoundError("user not found")
	}

	log.Info().
		Str("user", userID).
		Str("admin", session.UserID).
		Bool("verified", verified).
		Msg("user verification updated")

	return s.store.GetUserByID(ctx, userID)
}

// VerifyFoundItem publishes a pending found report to the feed. The item
// becomes claimable and its verification queue entry closes in the same
// transaction.
func (s *Service) VerifyFoundItem(ctx context.Context, session Session, itemID string) (store.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Item{}, notFoundError("item not found")
		}
		return store.Item{}, err
	}
	if item.Status != store.ItemStatusPending {
		return store.Item{}, invalidStateError("item is not awaiting verification")
	}

	verified, err := s.store.MarkItemVerified(ctx, itemID, session.UserID)
	if err != nil {
		return store.Item{}, err
	}
	if !verified {
		return store.Item{}, invalidStateError("item is not awaiting verification")
	}

	item, err = s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, err
	}

	s.indexItem(item)
	s.notifyFeed(ctx)

	log.Info().
		Str("item", itemID).
		Str("admin", session.UserID).
		Msg("found item verified")

	return item, nil
}

// ResolveAdminNotification closes a manual admin inbox entry.
func (s *Service) ResolveAdminNotification(ctx context.Context, session Session, id string, approve bool) error {
	status := "rejected"
	if approve {
		status = "approved"
	}
	found, err := s.store.ResolveAdminNotification(ctx, id, status, session.UserID)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("notification not found or already resolved")
	}
	return nil
}

// ReturnReceipt renders the PDF receipt for an approved claim.
func (s *Service) ReturnReceipt(ctx context.Context, session Session, claimID string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Receipt export is not configured", nil)
	}

	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("claim not found")
		}
		return nil, err
	}
	if claim.Status != store.ClaimStatusApproved {
		return nil, invalidStateError("receipts exist only for approved claims")
	}

	approvedBy := claim.ProcessedBy
	if admin, err := s.store.GetUserByID(ctx, claim.ProcessedBy); err == nil {
		approvedBy = admin.Name
	}

	returnedAt := time.Now()
	if claim.ProcessedAt != nil {
		returnedAt = *claim.ProcessedAt
	}

	var category, locationName string
	if item, err := s.store.GetItem(ctx, claim.ItemID); err == nil {
		category = item.Category
		locationName = item.Location.Name
	}

	return s.export.ReturnReceipt(export.Receipt{
		ClaimID:      claim.ID,
		ItemID:       claim.ItemID,
		ItemTitle:    claim.ItemTitle,
		Category:     category,
		LocationName: locationName,
		FinderName:   claim.FinderName,
		ClaimantName: claim.ClaimantName,
		ApprovedBy:   approvedBy,
		ReturnedAt:   returnedAt,
	})
}
