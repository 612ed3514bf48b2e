package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const subscribeTimeout = 5 * time.Second

// FeedStore is a Redis-aware implementation of app.FeedRepository.
// Feeds stay in a local registry so broadcast remains in-process. While a
// feed is registered the store follows the test's updates channel and
// relays standings published by other instances into it; the feed drops
// generations it has already seen, including this instance's own echo.
type FeedStore struct {
	client *redis.Client
	local  *memory.FeedStore

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

func NewFeedStore(client *redis.Client) *FeedStore {
	s := &FeedStore{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}
	s.local = memory.NewFeedStoreWithHooks(memory.FeedHooks{
		OnCreate:  s.follow,
		OnRelease: s.unfollow,
	})
	return s
}

func (s *FeedStore) GetOrCreate(testID string) *app.Feed {
	return s.local.GetOrCreate(testID)
}

func (s *FeedStore) Get(testID string) (*app.Feed, bool) {
	return s.local.Get(testID)
}

// DeleteIfIdle drops an idle feed and unsubscribes from its channel.
func (s *FeedStore) DeleteIfIdle(testID string) {
	s.local.DeleteIfIdle(testID)
}

func (s *FeedStore) follow(feed *app.Feed) {
	testID := feed.TestID()
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	ps := s.client.Subscribe(ctx, UpdatesChannel(testID))
	if _, err := ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("test_id", testID).Msg("subscribe standings updates failed, feed stays local")
		_ = ps.Close()
		return
	}

	s.mu.Lock()
	s.subs[testID] = ps
	s.mu.Unlock()

	go relay(feed, ps.Channel())
}

func (s *FeedStore) unfollow(feed *app.Feed) {
	testID := feed.TestID()
	s.mu.Lock()
	ps, ok := s.subs[testID]
	delete(s.subs, testID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := ps.Close(); err != nil {
		log.Debug().Err(err).Str("test_id", testID).Msg("close standings subscription")
	}
}

// relay runs until the subscription is closed.
func relay(feed *app.Feed, messages <-chan *redis.Message) {
	for msg := range messages {
		var lb domain.Leaderboard
		if err := json.Unmarshal([]byte(msg.Payload), &lb); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("discard malformed standings update")
			continue
		}
		if lb.TestID != feed.TestID() {
			continue
		}
		feed.Publish(lb)
	}
}
