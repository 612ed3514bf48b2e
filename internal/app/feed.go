package app

import (
	"sync"

	"assessment-engine/internal/domain"
)

// Feed is the in-process live standings channel of one test.
type Feed struct {
	testID      string
	mu          sync.RWMutex
	latest      *domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewFeed is exported for infrastructure layers that keep feed registries.
func NewFeed(testID string) *Feed {
	return &Feed{
		testID:      testID,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// TestID returns the test the feed belongs to.
func (f *Feed) TestID() string {
	return f.testID
}

// Publish stores lb as the latest standings and pushes it to every subscriber.
// A leaderboard that does not supersede the latest generation is dropped and
// Publish reports false.
func (f *Feed) Publish(lb domain.Leaderboard) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest != nil && !lb.Supersedes(*f.latest) {
		return false
	}
	f.latest = &lb
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			// slow subscriber: replace its stale update with the newest one
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return true
}

// Latest returns the most recent leaderboard, if any was published.
func (f *Feed) Latest() (domain.Leaderboard, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return domain.Leaderboard{}, false
	}
	return *f.latest, true
}

// Subscribe returns a channel of standings updates. The latest standings, if
// known, are delivered first. The caller must invoke cancel to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.latest != nil {
		ch <- *f.latest
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// IsIdle reports whether the feed has no subscribers.
func (f *Feed) IsIdle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}
