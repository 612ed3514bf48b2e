package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"assessment-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// SnapshotLoader fetches a test snapshot from the backing store.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error)
}

// SnapshotCache caches frozen test snapshots in Redis and falls back to a
// loader on cache miss. Snapshots are stored as JSON under
// snapshot:{testID}:{revision}; a revision never changes once cached.
type SnapshotCache struct {
	client *redis.Client
	loader SnapshotLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewSnapshotCache(client *redis.Client, loader SnapshotLoader, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error) {
	key := c.key(testID, revision)
	if snap, ok := c.cached(ctx, key); ok {
		return snap, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if snap, ok := c.cached(ctx, key); ok {
			return snap, nil
		}

		snap, err := c.loader.LoadSnapshot(ctx, testID, revision)
		if err != nil {
			return domain.Snapshot{}, err
		}

		payload, err := json.Marshal(snap)
		if err == nil {
			err = c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("snapshot cache fill")
		}
		return snap, nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return result.(domain.Snapshot), nil
}

func (c *SnapshotCache) cached(ctx context.Context, key string) (domain.Snapshot, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("snapshot cache read")
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("snapshot cache decode")
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (c *SnapshotCache) key(testID string, revision int) string {
	return "snapshot:" + testID + ":" + strconv.Itoa(revision)
}

func (c *SnapshotCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
