package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CacheConfig sizes a CachedStore.
type CacheConfig struct {
	TTL      time.Duration
	Capacity uint64
}

// DefaultCacheConfig keeps up to 1024 snapshots for ten minutes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 10 * time.Minute, Capacity: 1024}
}

func (c *CacheConfig) setDefaults() {
	d := DefaultCacheConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.Capacity == 0 {
		c.Capacity = d.Capacity
	}
}

type cacheKey struct {
	project  string
	snapshot string
}

// CachedStore decorates a Store with a cache of snapshots by id. Snapshots
// are immutable, so entries never go stale; the latest pointer is always
// read through.
type CachedStore struct {
	Store
	cache     *ttlcache.Cache[cacheKey, *Snapshot]
	closeOnce sync.Once
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps store. The cache's expiry loop runs until Close.
func NewCachedStore(store Store, config CacheConfig) *CachedStore {
	config.setDefaults()
	cache := ttlcache.New[cacheKey, *Snapshot](
		ttlcache.WithTTL[cacheKey, *Snapshot](config.TTL),
		ttlcache.WithCapacity[cacheKey, *Snapshot](config.Capacity),
	)
	go cache.Start()
	return &CachedStore{Store: store, cache: cache}
}

func (c *CachedStore) remember(s *Snapshot) {
	c.cache.Set(cacheKey{s.ProjectID, s.ID}, s, ttlcache.DefaultTTL)
}

func (c *CachedStore) CreateProject(ctx context.Context, rows, cols int) (Project, *Snapshot, error) {
	p, s, err := c.Store.CreateProject(ctx, rows, cols)
	if err == nil {
		c.remember(s)
	}
	return p, s, err
}

func (c *CachedStore) GetLatest(ctx context.Context, projectID string) (*Snapshot, error) {
	s, err := c.Store.GetLatest(ctx, projectID)
	if err == nil {
		c.remember(s)
	}
	return s, err
}

func (c *CachedStore) GetByID(ctx context.Context, projectID, snapshotID string) (*Snapshot, error) {
	if item := c.cache.Get(cacheKey{projectID, snapshotID}); item != nil {
		return item.Value(), nil
	}
	s, err := c.Store.GetByID(ctx, projectID, snapshotID)
	if err != nil {
		return nil, err
	}
	c.remember(s)
	return s, nil
}

func (c *CachedStore) DiffCells(ctx context.Context, projectID, a, b string) ([]int, error) {
	return Diff(ctx, c, projectID, a, b)
}

// Len is the number of cached snapshots.
func (c *CachedStore) Len() int { return c.cache.Len() }

func (c *CachedStore) Close() error {
	c.closeOnce.Do(func() {
		c.cache.Stop()
		c.cache.DeleteAll()
	})
	return c.Store.Close()
}
