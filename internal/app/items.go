package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"findr/api/internal/events"
	"findr/api/internal/feed"
	"findr/api/internal/imaging"
	"findr/api/internal/search"
	"findr/api/internal/store"
	"findr/api/internal/util"
)

// ReportItemInput is the payload for reporting a lost or found item.
type ReportItemInput struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Location    store.Location `json:"location"`
	Images      []string       `json:"images"`
}

// UpdateItemInput carries the editable item fields. Absent fields are left
// untouched.
type UpdateItemInput struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Category    *string         `json:"category"`
	Location    *store.Location `json:"location"`
	Images      *[]string       `json:"images"`
}

// ReportItem creates a new lost or found listing.
func (s *Service) ReportItem(ctx context.Context, session Session, input ReportItemInput) (store.Item, error) {
	var problems []string
	if strings.TrimSpace(input.Title) == "" {
		problems = append(problems, "title is required")
	}
	if input.Type != store.ItemStatusLost && input.Type != store.ItemStatusFound {
		problems = append(problems, "type must be lost or found")
	}
	if strings.TrimSpace(input.Category) == "" {
		problems = append(problems, "category is required")
	}
	if strings.TrimSpace(input.Location.Name) == "" {
		problems = append(problems, "location name is required")
	}
	if len(problems) > 0 {
		return store.Item{}, validationError("invalid item", problems)
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.Item{}, err
	}

	// Found reports are held back from claiming until an admin verifies
	// them; lost reports go straight out.
	status := input.Type
	needsVerification := input.Type == store.ItemStatusFound && s.cfg.ItemVerification
	if needsVerification {
		status = store.ItemStatusPending
	}

	item := store.Item{
		ID:            util.NewID("item"),
		Type:          input.Type,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      input.Category,
		Location:      input.Location,
		Images:        input.Images,
		PostedByID:    user.ID,
		PostedByName:  user.Name,
		PostedByEmail: user.Email,
		Status:        status,
	}

	if needsVerification {
		note := store.AdminNotification{
			ID:     util.NewID("anote"),
			Type:   "verification_needed",
			ItemID: item.ID,
		}
		err = s.store.InsertItemWithAdminNote(ctx, item, note)
	} else {
		err = s.store.InsertItem(ctx, item)
	}
	if err != nil {
		return store.Item{}, err
	}

	item, err = s.store.GetItem(ctx, item.ID)
	if err != nil {
		return store.Item{}, err
	}

	s.indexItem(item)
	if s.events != nil {
		s.events.PublishItemReported(ctx, events.ItemEvent{
			ItemID:   item.ID,
			Title:    item.Title,
			Category: item.Category,
			Status:   item.Status,
			PostedBy: item.PostedByID,
			At:       time.Now(),
		})
	}
	s.notifyFeed(ctx)

	log.Info().Str("item", item.ID).Str("type", item.Type).Str("user", user.ID).Msg("item reported")
	return item, nil
}

// GetItem returns one item with the claim availability computed for the
// viewer. viewerID may be empty.
func (s *Service) GetItem(ctx context.Context, viewerID, itemID string) (feed.ItemView, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return feed.ItemView{}, notFoundError("item not found")
		}
		return feed.ItemView{}, err
	}
	return s.feed.View(ctx, viewerID, item)
}

// BrowseFeed lists items through the feed projector.
func (s *Service) BrowseFeed(ctx context.Context, viewerID string, filter feed.Filter) ([]feed.ItemView, error) {
	return s.feed.Snapshot(ctx, viewerID, filter)
}

// MyItems lists the caller's own listings regardless of status.
func (s *Service) MyItems(ctx context.Context, session Session) ([]store.Item, error) {
	return s.store.ListItemsByPoster(ctx, session.UserID)
}

// MyClaims lists the caller's claims, newest first.
func (s *Service) MyClaims(ctx context.Context, session Session) ([]store.Claim, error) {
	return s.store.ListClaimsByClaimant(ctx, session.UserID)
}

// UpdateItem edits a listing. Only the poster or an admin may edit, and a
// returned item is frozen.
func (s *Service) UpdateItem(ctx context.Context, session Session, itemID string, input UpdateItemInput) (store.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Item{}, notFoundError("item not found")
		}
		return store.Item{}, err
	}
	if item.PostedByID != session.UserID && session.Role != "admin" {
		return store.Item{}, forbiddenError()
	}
	if item.Status == store.ItemStatusReturned {
		return store.Item{}, invalidStateError("a returned item can no longer be edited")
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return store.Item{}, validationError("title cannot be empty", nil)
	}

	found, err := s.store.UpdateItem(ctx, itemID, store.ItemUpdate{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Location:    input.Location,
		Images:      input.Images,
	})
	if err != nil {
		return store.Item{}, err
	}
	if !found {
		return store.Item{}, notFoundError("item not found")
	}

	item, err = s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, err
	}

	s.indexItem(item)
	s.notifyFeed(ctx)
	return item, nil
}

// DeleteItem removes a listing. Only the poster or an admin may delete, and
// not while a claim is pending.
func (s *Service) DeleteItem(ctx context.Context, session Session, itemID string) error {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("item not found")
		}
		return err
	}
	if item.PostedByID != session.UserID && session.Role != "admin" {
		return forbiddenError()
	}
	if item.ClaimStatus == store.ClaimStatusPending {
		return invalidStateError("item has a pending claim")
	}

	found, err := s.store.DeleteItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("item not found")
	}

	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	if s.blobs != nil {
		for _, img := range item.Images {
			key := s.blobs.KeyFromURL(img)
			if key == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("item", itemID).Msg("delete item image")
			}
		}
	}
	s.notifyFeed(ctx)
	return nil
}

// SearchItems runs a full-text query over listings.
func (s *Service) SearchItems(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// UploadImage validates, normalizes, and stores one uploaded photo,
// returning its public URL.
func (s *Service) UploadImage(ctx context.Context, r io.Reader) (string, error) {
	if s.blobs == nil {
		return "", domainError(503, "STORAGE_UNAVAILABLE", "Image storage is not configured", nil)
	}
	processed, err := imaging.Process(r)
	if err != nil {
		return "", validationError(err.Error(), nil)
	}
	_, url, err := s.blobs.Put(ctx, processed.Data, processed.MIME)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) indexItem(item store.Item) {
	if s.search == nil {
		return
	}
	s.search.IndexItem(search.ItemRecord{
		ID:           item.ID,
		Title:        item.Title,
		Description:  item.Description,
		Category:     item.Category,
		Status:       item.Status,
		LocationName: item.Location.Name,
	})
}

func (s *Service) notifyFeed(ctx context.Context) {
	if s.feed != nil {
		s.feed.Notify(ctx)
	}
}
