package app

import (
	"context"
	"time"

	"assessment-engine/internal/domain"
	"github.com/rs/zerolog/log"
)

// RankingService maintains the derived standings of each test and fans them
// out to publishers and live feeds.
type RankingService struct {
	tests      CatalogStore
	standings  StandingsStore
	feeds      FeedRepository
	publishers []StandingsPublisher
	now        func() time.Time
}

func NewRankingService(tests CatalogStore, standings StandingsStore, feeds FeedRepository, now func() time.Time, publishers ...StandingsPublisher) *RankingService {
	if now == nil {
		now = time.Now
	}
	return &RankingService{
		tests:      tests,
		standings:  standings,
		feeds:      feeds,
		publishers: publishers,
		now:        now,
	}
}

// Recompute re-ranks every completed attempt of the test and replaces its
// standings atomically. Publication failures are logged, never returned.
// Publications may arrive out of order under concurrent submits; consumers
// keep the highest generation.
func (s *RankingService) Recompute(ctx context.Context, testID string) (domain.Leaderboard, error) {
	lb, err := s.standings.ReplaceStandings(ctx, testID, func(attempts []domain.Attempt) []domain.Standing {
		return domain.RankAttempts(testID, attempts)
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb.UpdatedAt = s.now()

	for _, p := range s.publishers {
		if err := p.PublishStandings(ctx, lb); err != nil {
			log.Warn().Err(err).Str("test_id", testID).Int64("generation", lb.Generation).Msg("publish standings")
		}
	}
	if s.feeds != nil {
		if feed, ok := s.feeds.Get(testID); ok {
			feed.Publish(lb)
		}
	}
	return lb, nil
}

// Results returns the ranked standings of a test to its organizer.
func (s *RankingService) Results(ctx context.Context, testID, organizerID string) ([]domain.Standing, error) {
	if err := ownerOf(ctx, s.tests, testID, organizerID); err != nil {
		return nil, err
	}
	lb, err := s.standings.ListStandings(ctx, testID)
	if err != nil {
		return nil, err
	}
	return lb.Entries, nil
}

// Subscribe returns a channel of standings updates for the organizer of a
// test. The current standings are delivered first. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *RankingService) Subscribe(ctx context.Context, testID, organizerID string) (<-chan domain.Leaderboard, func(), error) {
	if err := ownerOf(ctx, s.tests, testID, organizerID); err != nil {
		return nil, nil, err
	}
	feed := s.feeds.GetOrCreate(testID)
	if _, ok := feed.Latest(); !ok {
		current, err := s.standings.ListStandings(ctx, testID)
		if err != nil {
			s.feeds.DeleteIfIdle(testID)
			return nil, nil, err
		}
		current.UpdatedAt = s.now()
		feed.Publish(current)
	}

	ch, cancel := feed.Subscribe()
	return ch, func() {
		cancel()
		s.feeds.DeleteIfIdle(testID)
	}, nil
}
