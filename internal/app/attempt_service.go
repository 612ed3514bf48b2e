package app

import (
	"context"
	"errors"
	"time"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/grading"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AttemptService drives the candidate attempt lifecycle:
// NotStarted -> InProgress -> Completed.
type AttemptService struct {
	tests     CatalogStore
	attempts  AttemptStore
	snapshots SnapshotSource
	ranking   *RankingService
	now       func() time.Time
	newID     func() string
}

func NewAttemptService(tests CatalogStore, attempts AttemptStore, snapshots SnapshotSource, ranking *RankingService, now func() time.Time) *AttemptService {
	if now == nil {
		now = time.Now
	}
	return &AttemptService{
		tests:     tests,
		attempts:  attempts,
		snapshots: snapshots,
		ranking:   ranking,
		now:       now,
		newID:     uuid.NewString,
	}
}

// StartResult is what a candidate receives when an attempt begins.
type StartResult struct {
	Attempt  domain.Attempt           `json:"attempt"`
	Test     domain.CandidateSnapshot `json:"test"`
	Deadline *time.Time               `json:"deadline,omitempty"`
}

// SubmitResult is the outcome of Submit. RankPending is set when the attempt
// is graded but standings could not be recomputed yet.
type SubmitResult struct {
	Attempt     domain.Attempt `json:"attempt"`
	RankPending bool           `json:"rankPending"`
}

// Start opens the single attempt a candidate may make at a test.
func (s *AttemptService) Start(ctx context.Context, testID, candidateID string) (StartResult, error) {
	if candidateID == "" {
		return StartResult{}, domain.ErrForbidden
	}
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return StartResult{}, err
	}
	if _, err := s.attempts.FindAttempt(ctx, testID, candidateID); err == nil {
		return StartResult{}, domain.ErrAlreadyAttempted
	} else if !errors.Is(err, domain.ErrNotFound) {
		return StartResult{}, err
	}

	now := s.now()
	if test.StatusAt(now) != domain.TestOpen {
		return StartResult{}, domain.ErrTestNotOpen
	}

	snap := test.Snapshot()
	attempt := domain.Attempt{
		ID:                  s.newID(),
		TestID:              test.ID,
		CandidateID:         candidateID,
		State:               domain.AttemptInProgress,
		StartedAt:           now,
		SnapshotRevision:    snap.Revision,
		TotalPossiblePoints: snap.TotalPoints(),
		Version:             1,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return StartResult{}, err
	}

	res := StartResult{Attempt: attempt, Test: snap.CandidateView()}
	if deadline, ok := attempt.Deadline(snap.DurationMinutes); ok {
		res.Deadline = &deadline
	}
	return res, nil
}

// Answer records or replaces the candidate's selection for one question.
func (s *AttemptService) Answer(ctx context.Context, attemptID, candidateID, questionID, optionID string) (domain.Answer, error) {
	attempt, err := s.ownAttempt(ctx, attemptID, candidateID)
	if err != nil {
		return domain.Answer{}, err
	}
	if attempt.State != domain.AttemptInProgress {
		return domain.Answer{}, domain.ErrAttemptNotInProgress
	}
	snap, err := s.snapshots.GetSnapshot(ctx, attempt.TestID, attempt.SnapshotRevision)
	if err != nil {
		return domain.Answer{}, err
	}
	now := s.now()
	if attempt.ExpiredAt(now, snap.DurationMinutes) {
		return domain.Answer{}, domain.ErrAttemptExpired
	}
	if err := snap.ValidateReference(questionID, optionID); err != nil {
		return domain.Answer{}, err
	}

	answer := domain.Answer{
		AttemptID:  attempt.ID,
		QuestionID: questionID,
		OptionID:   optionID,
		AnsweredAt: now,
	}
	if _, err := s.attempts.SaveAnswer(ctx, answer, attempt.Version); err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// Submit grades the attempt and recomputes the test standings. Submitting a
// completed attempt returns its stored result without grading again.
func (s *AttemptService) Submit(ctx context.Context, attemptID, candidateID string) (SubmitResult, error) {
	attempt, err := s.ownAttempt(ctx, attemptID, candidateID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.State == domain.AttemptCompleted {
		return completedResult(attempt), nil
	}

	snap, err := s.snapshots.GetSnapshot(ctx, attempt.TestID, attempt.SnapshotRevision)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.now()
	if attempt.ExpiredAt(now, snap.DurationMinutes) {
		return SubmitResult{}, domain.ErrAttemptExpired
	}

	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	graded := grading.Grade(answers, snap)
	for _, v := range graded.Violations {
		log.Error().Str("test_id", attempt.TestID).Str("attempt_id", attempt.ID).Msg("invariant violation: " + v)
	}

	completed, err := s.attempts.CompleteAttempt(ctx, attempt.ID, attempt.Version, domain.Completion{
		CompletedAt: now,
		Score:       graded.Score,
		Passed:      graded.Passed,
	})
	if errors.Is(err, domain.ErrConcurrentModification) {
		current, getErr := s.attempts.GetAttempt(ctx, attempt.ID)
		if getErr != nil {
			return SubmitResult{}, getErr
		}
		if current.State == domain.AttemptCompleted {
			return completedResult(current), nil
		}
		return SubmitResult{}, err
	}
	if err != nil {
		return SubmitResult{}, err
	}

	lb, err := s.ranking.Recompute(ctx, completed.TestID)
	if err != nil {
		log.Error().Err(err).Str("test_id", completed.TestID).Str("attempt_id", completed.ID).Msg("standings recompute failed")
		return SubmitResult{Attempt: completed, RankPending: true}, nil
	}
	for _, st := range lb.Entries {
		if st.AttemptID == completed.ID {
			rank := st.Rank
			completed.Rank = &rank
			break
		}
	}
	return SubmitResult{Attempt: completed, RankPending: completed.Rank == nil}, nil
}

// GetAttempt returns the candidate's own attempt.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, candidateID string) (domain.Attempt, error) {
	return s.ownAttempt(ctx, attemptID, candidateID)
}

func (s *AttemptService) ownAttempt(ctx context.Context, attemptID, candidateID string) (domain.Attempt, error) {
	if candidateID == "" {
		return domain.Attempt{}, domain.ErrForbidden
	}
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.CandidateID != candidateID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	return attempt, nil
}

func completedResult(a domain.Attempt) SubmitResult {
	return SubmitResult{Attempt: a, RankPending: a.Rank == nil}
}
