package feed

import (
	"context"
	"testing"
	"time"

	"findr/api/internal/config"
	"findr/api/internal/store"
)

type fakeFeedStore struct {
	items      []store.Item
	pending    map[string][]string
	lastFilter store.ItemFilter
}

func (f *fakeFeedStore) ListItems(_ context.Context, filter store.ItemFilter) ([]store.Item, error) {
	f.lastFilter = filter
	var out []store.Item
	for _, item := range f.items {
		if len(filter.Statuses) > 0 {
			match := false
			for _, status := range filter.Statuses {
				if item.Status == status {
					match = true
				}
			}
			if !match {
				continue
			}
		} else if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if !filter.Since.IsZero() && item.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeFeedStore) PendingItemIDsForClaimant(_ context.Context, userID string) ([]string, error) {
	return f.pending[userID], nil
}

func newTestProjector(st *fakeFeedStore, policy string) *Projector {
	return NewProjector(st, nil, policy)
}

func TestSnapshotFiltersByTab(t *testing.T) {
	st := &fakeFeedStore{items: []store.Item{
		{ID: "item_1", Status: store.ItemStatusLost},
		{ID: "item_2", Status: store.ItemStatusFound},
	}}
	p := newTestProjector(st, config.ClaimPolicyMulti)

	views, err := p.Snapshot(context.Background(), "", Filter{Tab: TabFound})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(views) != 1 || views[0].ID != "item_2" {
		t.Fatalf("expected only the found item, got %+v", views)
	}

	views, err = p.Snapshot(context.Background(), "", Filter{Tab: TabAll})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected both items on the all tab, got %d", len(views))
	}
}

func TestFoundTabListsUnverifiedItems(t *testing.T) {
	st := &fakeFeedStore{items: []store.Item{
		{ID: "item_1", Status: store.ItemStatusLost, PostedByID: "user_a"},
		{ID: "item_2", Status: store.ItemStatusFound, PostedByID: "user_a"},
		{ID: "item_3", Status: store.ItemStatusPending, PostedByID: "user_a"},
	}}
	p := newTestProjector(st, config.ClaimPolicyMulti)

	views, err := p.Snapshot(context.Background(), "user_b", Filter{Tab: TabFound})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected found and unverified items, got %d", len(views))
	}
	for _, view := range views {
		switch view.ID {
		case "item_2":
			if !view.CanClaim {
				t.Error("verified found item should be claimable")
			}
		case "item_3":
			if view.CanClaim {
				t.Error("unverified item should not be claimable")
			}
		default:
			t.Errorf("unexpected item %s on the found tab", view.ID)
		}
	}
}

func TestSnapshotDateRanges(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	st := &fakeFeedStore{items: []store.Item{
		{ID: "item_today", Status: store.ItemStatusFound, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "item_old", Status: store.ItemStatusFound, CreatedAt: now.AddDate(0, 0, -3)},
		{ID: "item_ancient", Status: store.ItemStatusFound, CreatedAt: now.AddDate(0, -2, 0)},
	}}
	p := newTestProjector(st, config.ClaimPolicyMulti)
	p.now = func() time.Time { return now }

	tests := []struct {
		rng  DateRange
		want []string
	}{
		{RangeToday, []string{"item_today"}},
		{RangeWeek, []string{"item_today", "item_old"}},
		{RangeMonth, []string{"item_today", "item_old"}},
		{RangeAll, []string{"item_today", "item_old", "item_ancient"}},
	}

	for _, tt := range tests {
		views, err := p.Snapshot(context.Background(), "", Filter{Range: tt.rng})
		if err != nil {
			t.Fatalf("Snapshot(%q): %v", tt.rng, err)
		}
		if len(views) != len(tt.want) {
			t.Errorf("range %q: got %d items, want %d", tt.rng, len(views), len(tt.want))
			continue
		}
		for i, id := range tt.want {
			if views[i].ID != id {
				t.Errorf("range %q: item %d = %s, want %s", tt.rng, i, views[i].ID, id)
			}
		}
	}
}

func TestCanClaimRules(t *testing.T) {
	found := store.Item{ID: "item_1", Status: store.ItemStatusFound, PostedByID: "user_finder"}

	tests := []struct {
		name     string
		policy   string
		item     store.Item
		viewerID string
		pending  map[string][]string
		want     bool
	}{
		{
			name:     "claimable found item",
			policy:   config.ClaimPolicyMulti,
			item:     found,
			viewerID: "user_owner",
			want:     true,
		},
		{
			name:     "anonymous viewer cannot claim",
			policy:   config.ClaimPolicyMulti,
			item:     found,
			viewerID: "",
			want:     false,
		},
		{
			name:     "poster cannot claim own item",
			policy:   config.ClaimPolicyMulti,
			item:     found,
			viewerID: "user_finder",
			want:     false,
		},
		{
			name:     "lost items are not claimable",
			policy:   config.ClaimPolicyMulti,
			item:     store.Item{ID: "item_2", Status: store.ItemStatusLost, PostedByID: "user_finder"},
			viewerID: "user_owner",
			want:     false,
		},
		{
			name:     "returned items are not claimable",
			policy:   config.ClaimPolicyMulti,
			item:     store.Item{ID: "item_3", Status: store.ItemStatusReturned, PostedByID: "user_finder"},
			viewerID: "user_owner",
			want:     false,
		},
		{
			name:     "viewer with pending claim cannot claim again",
			policy:   config.ClaimPolicyMulti,
			item:     found,
			viewerID: "user_owner",
			pending:  map[string][]string{"user_owner": {"item_1"}},
			want:     false,
		},
		{
			name:     "multi policy allows claiming contested item",
			policy:   config.ClaimPolicyMulti,
			item:     store.Item{ID: "item_1", Status: store.ItemStatusFound, PostedByID: "user_finder", ClaimStatus: store.ClaimStatusPending},
			viewerID: "user_owner",
			want:     true,
		},
		{
			name:     "single policy blocks contested item",
			policy:   config.ClaimPolicySingle,
			item:     store.Item{ID: "item_1", Status: store.ItemStatusFound, PostedByID: "user_finder", ClaimStatus: store.ClaimStatusPending},
			viewerID: "user_owner",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeFeedStore{items: []store.Item{tt.item}, pending: tt.pending}
			p := newTestProjector(st, tt.policy)

			views, err := p.Snapshot(context.Background(), tt.viewerID, Filter{})
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			if len(views) != 1 {
				t.Fatalf("expected one view, got %d", len(views))
			}
			if views[0].CanClaim != tt.want {
				t.Errorf("CanClaim = %v, want %v", views[0].CanClaim, tt.want)
			}
		})
	}
}

func TestSubscribeAndNotify(t *testing.T) {
	p := newTestProjector(&fakeFeedStore{}, config.ClaimPolicyMulti)

	sub := p.Subscribe()
	defer sub.Close()

	p.Notify(context.Background())

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}

	// Repeated notifies coalesce into at most one pending signal.
	p.Notify(context.Background())
	p.Notify(context.Background())
	<-sub.C
	select {
	case <-sub.C:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	p := newTestProjector(&fakeFeedStore{}, config.ClaimPolicyMulti)

	sub := p.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	p.Notify(context.Background())

	select {
	case <-sub.C:
		t.Fatal("closed subscription should not receive signals")
	default:
	}
}
