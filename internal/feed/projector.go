// Package feed projects the items table into the browse feed: filterable
// snapshots annotated per viewer with whether each item can be claimed, plus
// change subscriptions so connected clients can refresh live.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"findr/api/internal/config"
	"findr/api/internal/store"
)

// changesChannel is the Redis pub/sub channel used to propagate feed
// invalidations across API instances.
const changesChannel = "findr:changes"

// Tab selects which item statuses the feed shows.
type Tab string

const (
	TabAll   Tab = "all"
	TabLost  Tab = "lost"
	TabFound Tab = "found"
)

// DateRange restricts the feed to recently reported items. Windows are
// evaluated against the clock at snapshot time, not at subscription time.
type DateRange string

const (
	RangeAll   DateRange = ""
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

// Filter narrows a feed snapshot.
type Filter struct {
	Tab      Tab
	Category string
	Range    DateRange
	Limit    int
}

// ItemView is an item as the feed presents it to one viewer.
type ItemView struct {
	store.Item
	CanClaim bool `json:"canClaim"`
}

// feedStore is the slice of the data layer the projector reads.
type feedStore interface {
	ListItems(ctx context.Context, f store.ItemFilter) ([]store.Item, error)
	PendingItemIDsForClaimant(ctx context.Context, userID string) ([]string, error)
}

// Projector builds viewer-specific feed snapshots and fans out change
// signals to subscribers.
type Projector struct {
	store  feedStore
	rdb    *redis.Client
	policy string
	now    func() time.Time

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewProjector creates a feed projector. rdb may be nil, in which case
// change signals stay within this process.
func NewProjector(st feedStore, rdb *redis.Client, claimPolicy string) *Projector {
	return &Projector{
		store:  st,
		rdb:    rdb,
		policy: claimPolicy,
		now:    time.Now,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Snapshot lists items matching the filter and marks each with whether the
// viewer may claim it right now. viewerID may be empty for anonymous browsing.
func (p *Projector) Snapshot(ctx context.Context, viewerID string, f Filter) ([]ItemView, error) {
	sf := store.ItemFilter{
		Category: f.Category,
		Limit:    f.Limit,
	}
	switch f.Tab {
	case TabLost:
		sf.Status = store.ItemStatusLost
	case TabFound:
		// Unverified found reports are listed but stay unclaimable until
		// an admin publishes them.
		sf.Statuses = []string{store.ItemStatusFound, store.ItemStatusPending}
	}
	if since, ok := p.rangeStart(f.Range); ok {
		sf.Since = since
	}

	items, err := p.store.ListItems(ctx, sf)
	if err != nil {
		return nil, err
	}

	pending := map[string]bool{}
	if viewerID != "" {
		ids, err := p.store.PendingItemIDsForClaimant(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			pending[id] = true
		}
	}

	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, ItemView{
			Item:     item,
			CanClaim: p.canClaim(item, viewerID, pending[item.ID]),
		})
	}
	return views, nil
}

// View annotates a single item for one viewer, same rules as Snapshot.
func (p *Projector) View(ctx context.Context, viewerID string, item store.Item) (ItemView, error) {
	pending := false
	if viewerID != "" {
		ids, err := p.store.PendingItemIDsForClaimant(ctx, viewerID)
		if err != nil {
			return ItemView{}, err
		}
		for _, id := range ids {
			if id == item.ID {
				pending = true
			}
		}
	}
	return ItemView{Item: item, CanClaim: p.canClaim(item, viewerID, pending)}, nil
}

// canClaim decides whether the claim action is available to this viewer.
// Only found items can be claimed, never by their own poster, never twice
// while a claim is still pending, and under the single-claim policy not
// while anyone else's claim is pending either.
func (p *Projector) canClaim(item store.Item, viewerID string, viewerHasPending bool) bool {
	if item.Status != store.ItemStatusFound {
		return false
	}
	if viewerID == "" || item.PostedByID == viewerID {
		return false
	}
	if viewerHasPending {
		return false
	}
	if p.policy == config.ClaimPolicySingle && item.ClaimStatus == store.ClaimStatusPending {
		return false
	}
	return true
}

func (p *Projector) rangeStart(r DateRange) (time.Time, bool) {
	now := p.now()
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case RangeWeek:
		return now.AddDate(0, 0, -7), true
	case RangeMonth:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}

// Subscription delivers change signals on C. A signal means the feed may
// have changed; the consumer should take a fresh Snapshot. Signals are
// coalesced, so one receive can stand for several changes.
type Subscription struct {
	C chan struct{}

	p    *Projector
	once sync.Once
}

// Close detaches the subscription from the projector. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.p.mu.Lock()
		delete(s.p.subs, s)
		s.p.mu.Unlock()
	})
}

// Subscribe registers for change signals. The caller must Close the
// subscription when done or the projector keeps signalling a dead channel.
func (p *Projector) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan struct{}, 1), p: p}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	return sub
}

// Notify signals all local subscribers and, when Redis is configured,
// publishes to the shared channel so other instances refresh too.
func (p *Projector) Notify(ctx context.Context) {
	p.signalLocal()
	if p.rdb != nil {
		if err := p.rdb.Publish(ctx, changesChannel, "changed").Err(); err != nil {
			log.Warn().Err(err).Msg("publish feed change")
		}
	}
}

func (p *Projector) signalLocal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		select {
		case sub.C <- struct{}{}:
		default:
			// Signal already pending, coalesce.
		}
	}
}

// Run listens on the shared Redis channel and relays remote changes to
// local subscribers. Blocks until ctx is cancelled. No-op without Redis.
func (p *Projector) Run(ctx context.Context) {
	if p.rdb == nil {
		return
	}

	pubsub := p.rdb.Subscribe(ctx, changesChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			p.signalLocal()
		}
	}
}
