package app

import (
	"context"
	"time"

	"assessment-engine/internal/domain"
)

// CatalogStore persists test definitions.
type CatalogStore interface {
	CreateTest(ctx context.Context, test domain.Test) error
	// GetTest returns the test with its questions ordered by position.
	GetTest(ctx context.Context, testID string) (domain.Test, error)
	// AddQuestion calls build with the current test while holding the test's
	// write lock, then stores the returned question and bumps the revision.
	// It fails with domain.ErrTestLocked once any attempt exists.
	AddQuestion(ctx context.Context, testID string, build func(domain.Test) (domain.Question, error)) (domain.Question, error)
	PublishTest(ctx context.Context, testID string, at time.Time) (domain.Test, error)
	CloseTest(ctx context.Context, testID string, at time.Time) (domain.Test, error)
}

// AttemptStore persists attempts and answers.
type AttemptStore interface {
	// CreateAttempt inserts the attempt and locks its test in one step. It fails
	// with domain.ErrAlreadyAttempted when the (test, candidate) pair exists and
	// with domain.ErrConcurrentModification when the test revision moved. It
	// fails with domain.ErrTestNotOpen unless the test is open at StartedAt.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// FindAttempt returns the candidate's attempt for a test, domain.ErrNotFound if none.
	FindAttempt(ctx context.Context, testID, candidateID string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, testID string) ([]domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// SaveAnswer upserts the answer if the attempt is in progress at
	// expectedVersion and returns the new version.
	SaveAnswer(ctx context.Context, answer domain.Answer, expectedVersion int64) (int64, error)
	// CompleteAttempt moves the attempt to completed if it is still at expectedVersion.
	CompleteAttempt(ctx context.Context, attemptID string, expectedVersion int64, completion domain.Completion) (domain.Attempt, error)
}

// StandingsStore persists the derived ranking of each test.
type StandingsStore interface {
	// ReplaceStandings reads every attempt of the test, ranks them with rank and
	// replaces the stored standings, all in one atomic step per test. The
	// returned leaderboard carries the generation assigned inside that step.
	ReplaceStandings(ctx context.Context, testID string, rank func([]domain.Attempt) []domain.Standing) (domain.Leaderboard, error)
	// ListStandings returns the stored standings with their generation.
	ListStandings(ctx context.Context, testID string) (domain.Leaderboard, error)
}

// SnapshotSource loads frozen snapshots (from cache/backing store).
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error)
}

// StandingsPublisher fans out recomputed standings. Implementations must not
// let a lower generation replace a higher one.
type StandingsPublisher interface {
	PublishStandings(ctx context.Context, lb domain.Leaderboard) error
}

// FeedRepository abstracts where live standings feeds are kept (in-memory, Redis, etc).
type FeedRepository interface {
	GetOrCreate(testID string) *Feed
	Get(testID string) (*Feed, bool)
	DeleteIfIdle(testID string)
}
