package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryUserStore implements UserStore on ttlcache. It backs tests and
// single-node deployments that run without Redis.
type MemoryUserStore struct {
	cache *ttlcache.Cache[string, *CachedEntry]
	ttl   time.Duration
}

// NewMemoryUserStore creates an in-memory user store with automatic
// expired-entry cleanup.
func NewMemoryUserStore(ttl time.Duration) *MemoryUserStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *CachedEntry](ttl),
		ttlcache.WithDisableTouchOnHit[string, *CachedEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryUserStore{
		cache: cache,
		ttl:   ttl,
	}
}

// GetOne implements UserStore.GetOne.
func (s *MemoryUserStore) GetOne(_ context.Context, id string) (*CachedEntry, error) {
	item := s.cache.Get(id)
	if item == nil || item.IsExpired() {
		return nil, ErrEntryNotFound
	}
	return item.Value(), nil
}

// GetMany implements UserStore.GetMany.
func (s *MemoryUserStore) GetMany(_ context.Context, ids []string) (map[string]*CachedEntry, error) {
	found := make(map[string]*CachedEntry, len(ids))
	for _, id := range ids {
		if item := s.cache.Get(id); item != nil && !item.IsExpired() {
			found[id] = item.Value()
		}
	}
	return found, nil
}

// PutMany implements UserStore.PutMany. Every write resets that entry's TTL.
func (s *MemoryUserStore) PutMany(_ context.Context, entries []*CachedEntry) error {
	for _, entry := range entries {
		s.cache.Set(entry.ID, entry, s.ttl)
	}
	return nil
}

// All implements UserStore.All.
func (s *MemoryUserStore) All(_ context.Context) ([]*CachedEntry, error) {
	items := s.cache.Items()
	entries := make([]*CachedEntry, 0, len(items))
	for _, item := range items {
		if item.IsExpired() {
			continue
		}
		entries = append(entries, item.Value())
	}
	return entries, nil
}

// Count implements UserStore.Count.
func (s *MemoryUserStore) Count(ctx context.Context) (int, error) {
	entries, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Stop terminates the background cleanup goroutine.
func (s *MemoryUserStore) Stop() {
	s.cache.Stop()
}

var _ UserStore = (*MemoryUserStore)(nil)
