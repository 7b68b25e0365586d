// Package discovery caches per-user "what to watch" snapshots so a read
// does not cost five catalog queries when nothing has changed. Entries
// expire by TTL and are removed early by targeted event-driven
// invalidation.
package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jellysync/internal/models"
)

// DefaultTTL balances freshness against redundant catalog-wide scans;
// discovery feeds change slowly.
const DefaultTTL = 1800 * time.Second

const defaultFeedLimit = 24

// Fetcher is the slice of the API client the aggregation needs.
type Fetcher interface {
	NextUp(ctx context.Context, userID string, limit int) ([]models.MediaItem, error)
	ResumeItems(ctx context.Context, userID string, limit int) ([]models.MediaItem, error)
	LatestItems(ctx context.Context, userID string, limit int) ([]models.MediaItem, error)
	Suggestions(ctx context.Context, userID string, limit int) ([]models.MediaItem, error)
	Counts(ctx context.Context, userID string) (models.ItemCounts, error)
}

// Key identifies one cache entry.
type Key struct {
	ServerID string
	UserID   string
}

type entry struct {
	data    models.DiscoveryData
	created time.Time
	ttl     time.Duration
}

// Stats is a read-only view of the cache counters. Hits and Misses are
// monotonic for the cache's lifetime; Entries is the current size.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

type Cache struct {
	fetcher  Fetcher
	serverID string
	ttl      time.Duration
	limit    int
	now      func() time.Time

	mu      sync.Mutex
	entries map[Key]entry
	hits    uint64
	misses  uint64
}

type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithFeedLimit overrides how many items each feed requests.
func WithFeedLimit(n int) Option {
	return func(c *Cache) { c.limit = n }
}

func NewCache(serverID string, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		serverID: serverID,
		ttl:      DefaultTTL,
		limit:    defaultFeedLimit,
		now:      time.Now,
		entries:  make(map[Key]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRefresh returns the cached snapshot for a user while it is fresh,
// refilling it otherwise. A failed refill preserves whatever entry was
// there before and reports the failure.
func (c *Cache) GetOrRefresh(ctx context.Context, userID string) (models.DiscoveryData, error) {
	key := Key{ServerID: c.serverID, UserID: userID}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.created) < e.ttl {
		c.hits++
		c.mu.Unlock()
		return e.data, nil
	}
	c.misses++
	c.mu.Unlock()

	return c.refill(ctx, key)
}

// ForceRefresh refills the entry unconditionally, for callers that need
// guaranteed-fresh data regardless of TTL. It counts as a miss.
func (c *Cache) ForceRefresh(ctx context.Context, userID string) (models.DiscoveryData, error) {
	key := Key{ServerID: c.serverID, UserID: userID}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return c.refill(ctx, key)
}

func (c *Cache) refill(ctx context.Context, key Key) (models.DiscoveryData, error) {
	data, err := c.aggregate(ctx, key.UserID)
	if err != nil {
		return models.DiscoveryData{}, err
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, created: c.now(), ttl: c.ttl}
	c.mu.Unlock()
	return data, nil
}

// aggregate fans the feed queries out in parallel and merges them into
// one snapshot. Any failure fails the whole aggregation: a snapshot is
// all-or-nothing.
func (c *Cache) aggregate(ctx context.Context, userID string) (models.DiscoveryData, error) {
	var data models.DiscoveryData
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := c.fetcher.NextUp(ctx, userID, c.limit)
		if err == nil {
			data.NextUp = items
		}
		return err
	})
	g.Go(func() error {
		items, err := c.fetcher.ResumeItems(ctx, userID, c.limit)
		if err == nil {
			data.ContinueWatching = items
		}
		return err
	})
	g.Go(func() error {
		items, err := c.fetcher.LatestItems(ctx, userID, c.limit)
		if err == nil {
			data.RecentlyAdded = items
		}
		return err
	})
	g.Go(func() error {
		items, err := c.fetcher.Suggestions(ctx, userID, c.limit)
		if err == nil {
			data.Suggestions = items
		}
		return err
	})
	g.Go(func() error {
		counts, err := c.fetcher.Counts(ctx, userID)
		if err == nil {
			data.Counts = counts
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return models.DiscoveryData{}, err
	}
	return data, nil
}

// InvalidateUser drops one user's entry. Other users' entries and the
// counters they depend on are untouched.
func (c *Cache) InvalidateUser(userID string) {
	c.mu.Lock()
	delete(c.entries, Key{ServerID: c.serverID, UserID: userID})
	c.mu.Unlock()
}

// InvalidateAll drops every entry; used on library-wide changes since
// recently-added and suggestions depend on the whole catalog.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[Key]entry)
	c.mu.Unlock()
}

// Stats returns the current counter snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
