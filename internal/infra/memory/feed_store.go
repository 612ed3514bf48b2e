package memory

import (
	"sync"

	"assessment-engine/internal/app"
)

// FeedHooks attach work to the lifetime of a feed. OnCreate runs when a feed
// is first registered and OnRelease when it is dropped as idle; both run
// while the registry lock is held, so they are never interleaved for a test.
type FeedHooks struct {
	OnCreate  func(feed *app.Feed)
	OnRelease func(feed *app.Feed)
}

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]*app.Feed
	hooks FeedHooks
}

func NewFeedStore() *FeedStore {
	return NewFeedStoreWithHooks(FeedHooks{})
}

func NewFeedStoreWithHooks(hooks FeedHooks) *FeedStore {
	return &FeedStore{
		feeds: make(map[string]*app.Feed),
		hooks: hooks,
	}
}

func (s *FeedStore) GetOrCreate(testID string) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[testID]; ok {
		return feed
	}
	feed := app.NewFeed(testID)
	s.feeds[testID] = feed
	if s.hooks.OnCreate != nil {
		s.hooks.OnCreate(feed)
	}
	return feed
}

func (s *FeedStore) Get(testID string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[testID]
	return feed, ok
}

// DeleteIfIdle drops the feed once its last subscriber has left.
func (s *FeedStore) DeleteIfIdle(testID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[testID]
	if !ok || !feed.IsIdle() {
		return
	}
	delete(s.feeds, testID)
	if s.hooks.OnRelease != nil {
		s.hooks.OnRelease(feed)
	}
}
