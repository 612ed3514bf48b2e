package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"assessment-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// SnapshotLoader fetches a test snapshot from a backing store.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error)
}

// SnapshotCache caches snapshots with TTL to avoid repeated store hits.
// Entries are keyed by revision, so a cached snapshot is never stale.
type SnapshotCache struct {
	loader SnapshotLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snapshot  domain.Snapshot
	expiresAt time.Time
}

func NewSnapshotCache(loader SnapshotLoader, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSnapshot),
	}
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error) {
	key := testID + "@" + strconv.Itoa(revision)
	if snap, ok := c.lookup(key); ok {
		return snap, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if snap, ok := c.lookup(key); ok {
			return snap, nil
		}
		snap, err := c.loader.LoadSnapshot(ctx, testID, revision)
		if err != nil {
			return domain.Snapshot{}, err
		}

		c.mu.Lock()
		c.cache[key] = cachedSnapshot{
			snapshot:  snap,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return result.(domain.Snapshot), nil
}

func (c *SnapshotCache) lookup(key string) (domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Snapshot{}, false
	}
	return entry.snapshot, true
}

func (c *SnapshotCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
