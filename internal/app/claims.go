package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"findr/api/internal/config"
	"findr/api/internal/events"
	"findr/api/internal/store"
	"findr/api/internal/util"
)

// SubmitClaimInput is the payload for claiming a found item.
type SubmitClaimInput struct {
	ItemID      string   `json:"itemId"`
	Description string   `json:"description"`
	ProofImages []string `json:"proofImages"`
}

// ResolveClaimInput is the admin decision on a pending claim.
type ResolveClaimInput struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// ResolveClaimResult reports the outcome of a resolution.
type ResolveClaimResult struct {
	Claim            store.Claim
	RejectedSiblings int
}

// SubmitClaim files an ownership claim against a found item. The claim, its
// chat thread, the admin queue entry, and the finder's notification commit
// in one transaction.
func (s *Service) SubmitClaim(ctx context.Context, session Session, input SubmitClaimInput) (store.Claim, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return store.Claim{}, validationError("itemId is required", nil)
	}
	if strings.TrimSpace(input.Description) == "" {
		return store.Claim{}, validationError("a description of the item is required", nil)
	}

	item, err := s.store.GetItem(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Claim{}, notFoundError("item not found")
		}
		return store.Claim{}, err
	}

	if item.Status != store.ItemStatusFound {
		return store.Claim{}, invalidStateError("only found items can be claimed")
	}
	if item.PostedByID == session.UserID {
		return store.Claim{}, selfClaimError()
	}
	if s.cfg.ClaimPolicy == config.ClaimPolicySingle && item.ClaimStatus == store.ClaimStatusPending {
		return store.Claim{}, invalidStateError("this item already has a pending claim")
	}

	exists, err := s.store.PendingClaimExists(ctx, item.ID, session.UserID)
	if err != nil {
		return store.Claim{}, err
	}
	if exists {
		return store.Claim{}, duplicateClaimError()
	}

	claimant, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.Claim{}, err
	}

	claim := store.Claim{
		ID:            util.NewID("claim"),
		ItemID:        item.ID,
		ItemTitle:     item.Title,
		ClaimantID:    claimant.ID,
		ClaimantName:  claimant.Name,
		ClaimantEmail: claimant.Email,
		FinderID:      item.PostedByID,
		FinderName:    item.PostedByName,
		Status:        store.ClaimStatusPending,
		Description:   strings.TrimSpace(input.Description),
		ProofImages:   input.ProofImages,
	}

	chatID := util.NewID("chat")
	claim.ChatID = chatID

	bundle := store.ClaimBundle{
		Claim: claim,
		Chat: store.Chat{
			ID:         chatID,
			ItemID:     item.ID,
			ClaimID:    claim.ID,
			FinderID:   item.PostedByID,
			ClaimantID: claimant.ID,
		},
		SeedMessage: store.ChatMessage{
			ID:       util.NewID("msg"),
			ChatID:   chatID,
			SenderID: claimant.ID,
			Body:     fmt.Sprintf("%s claimed %q. The chat unlocks once an admin approves the claim.", claimant.Name, item.Title),
			System:   true,
		},
		AdminNote: store.AdminNotification{
			ID:     util.NewID("anote"),
			Type:   "new_claim",
			ItemID: item.ID,
		},
		FinderNote: store.Notification{
			ID:        util.NewID("note"),
			UserID:    item.PostedByID,
			Type:      "claim_submitted",
			ItemID:    item.ID,
			ItemTitle: item.Title,
			ClaimID:   claim.ID,
			ChatID:    chatID,
		},
		MarkItemPending: s.cfg.ClaimPolicy == config.ClaimPolicySingle,
	}

	if err := s.store.InsertClaimBundle(ctx, bundle); err != nil {
		if errors.Is(err, store.ErrDuplicatePendingClaim) {
			return store.Claim{}, duplicateClaimError()
		}
		return store.Claim{}, err
	}

	if s.events != nil {
		s.events.PublishClaimSubmitted(ctx, events.ClaimEvent{
			ClaimID:    claim.ID,
			ItemID:     item.ID,
			ClaimantID: claimant.ID,
			Status:     claim.Status,
			At:         time.Now(),
		})
	}
	s.notifyFeed(ctx)

	log.Info().
		Str("claim", claim.ID).
		Str("item", item.ID).
		Str("claimant", claimant.ID).
		Msg("claim submitted")

	return claim, nil
}

// GetClaim returns one claim. Visible to its claimant, the item's finder,
// and admins.
func (s *Service) GetClaim(ctx context.Context, session Session, claimID string) (store.Claim, error) {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Claim{}, notFoundError("claim not found")
		}
		return store.Claim{}, err
	}
	if claim.ClaimantID != session.UserID && claim.FinderID != session.UserID && session.Role != "admin" {
		return store.Claim{}, forbiddenError()
	}
	return claim, nil
}

// ResolveClaim applies an admin's approve/reject decision. On approval the
// item is marked returned, its chat unlocks, and every competing pending
// claim is rejected in the same transaction. Exactly two notifications fan
// out: the verdict to the claimant and a processing note to the finder.
func (s *Service) ResolveClaim(ctx context.Context, session Session, claimID string, input ResolveClaimInput) (ResolveClaimResult, error) {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResolveClaimResult{}, notFoundError("claim not found")
		}
		return ResolveClaimResult{}, err
	}

	claimantType := "claim_rejected"
	if input.Approve {
		claimantType = "claim_approved"
	}
	approved := input.Approve

	res := store.ClaimResolution{
		ClaimID:                claimID,
		Approve:                input.Approve,
		AdminID:                session.UserID,
		SiblingRejectionReason: "Another claim for this item was approved",
		ClaimantNote: store.Notification{
			ID:        util.NewID("note"),
			UserID:    claim.ClaimantID,
			Type:      claimantType,
			ItemID:    claim.ItemID,
			ItemTitle: claim.ItemTitle,
			ClaimID:   claim.ID,
			ChatID:    claim.ChatID,
		},
		FinderNote: store.Notification{
			ID:        util.NewID("note"),
			UserID:    claim.FinderID,
			Type:      "claim_processed",
			ItemID:    claim.ItemID,
			ItemTitle: claim.ItemTitle,
			ClaimID:   claim.ID,
			ChatID:    claim.ChatID,
			Approved:  &approved,
		},
	}

	result, err := s.store.ResolveClaim(ctx, res)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ResolveClaimResult{}, notFoundError("claim not found")
		case errors.Is(err, store.ErrClaimNotPending):
			return ResolveClaimResult{}, invalidStateError("claim was already resolved")
		}
		return ResolveClaimResult{}, err
	}

	s.afterResolve(ctx, result, input.Reason)

	log.Info().
		Str("claim", claimID).
		Str("admin", session.UserID).
		Bool("approved", input.Approve).
		Int("rejected_siblings", result.RejectedSiblings).
		Msg("claim resolved")

	return ResolveClaimResult{Claim: result.Claim, RejectedSiblings: result.RejectedSiblings}, nil
}

// afterResolve runs the best-effort side effects of a committed resolution:
// search reindex, broker events, outcome email, feed refresh.
func (s *Service) afterResolve(ctx context.Context, result store.ResolveResult, reason string) {
	claim := result.Claim
	approved := claim.Status == store.ClaimStatusApproved

	if item, err := s.store.GetItem(ctx, claim.ItemID); err == nil {
		s.indexItem(item)
	}

	if s.events != nil {
		s.events.PublishClaimResolved(ctx, events.ClaimEvent{
			ClaimID:    claim.ID,
			ItemID:     claim.ItemID,
			ClaimantID: claim.ClaimantID,
			Status:     claim.Status,
			At:         time.Now(),
		})
		if approved {
			s.events.PublishItemReturned(ctx, events.ItemEvent{
				ItemID: claim.ItemID,
				Title:  claim.ItemTitle,
				Status: store.ItemStatusReturned,
				At:     time.Now(),
			})
		}
	}

	if s.SMTPConfigured() && claim.ClaimantEmail != "" {
		profileURL := s.cfg.CORSOrigin + "/profile"
		if err := s.email.SendClaimOutcomeEmail(claim.ClaimantEmail, claim.ClaimantName, claim.ItemTitle, approved, reason, profileURL); err != nil {
			log.Warn().Err(err).Str("claim", claim.ID).Msg("send claim outcome email")
		}
	}

	s.notifyFeed(ctx)
}
