package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"assessment-engine/internal/domain"
)

// Store is an in-memory implementation of app.CatalogStore, app.AttemptStore
// and app.StandingsStore. A single mutex serializes all writes, which gives
// the same atomicity the postgres store gets from transactions.
type Store struct {
	mu          sync.RWMutex
	tests       map[string]domain.Test
	attempts    map[string]domain.Attempt
	byCandidate map[attemptKey]string
	answers     map[string]map[string]domain.Answer
	standings   map[string][]domain.Standing
	generations map[string]int64
}

type attemptKey struct {
	testID      string
	candidateID string
}

func NewStore() *Store {
	return &Store{
		tests:       make(map[string]domain.Test),
		attempts:    make(map[string]domain.Attempt),
		byCandidate: make(map[attemptKey]string),
		answers:     make(map[string]map[string]domain.Answer),
		standings:   make(map[string][]domain.Standing),
		generations: make(map[string]int64),
	}
}

func (s *Store) CreateTest(_ context.Context, test domain.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[test.ID]; ok {
		return fmt.Errorf("create test %s: already exists", test.ID)
	}
	s.tests[test.ID] = copyTest(test)
	return nil
}

func (s *Store) GetTest(_ context.Context, testID string) (domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrNotFound
	}
	return copyTest(test), nil
}

func (s *Store) AddQuestion(_ context.Context, testID string, build func(domain.Test) (domain.Question, error)) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[testID]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	if test.Locked() {
		return domain.Question{}, domain.ErrTestLocked
	}
	q, err := build(copyTest(test))
	if err != nil {
		return domain.Question{}, err
	}

	test = copyTest(test)
	test.Questions = append(test.Questions, copyQuestion(q))
	test.Revision++
	test.SortQuestions()
	s.tests[testID] = test
	return q, nil
}

func (s *Store) PublishTest(_ context.Context, testID string, at time.Time) (domain.Test, error) {
	return s.updateTest(testID, func(t *domain.Test) {
		if t.PublishedAt == nil {
			t.PublishedAt = &at
		}
	})
}

func (s *Store) CloseTest(_ context.Context, testID string, at time.Time) (domain.Test, error) {
	return s.updateTest(testID, func(t *domain.Test) {
		if t.ClosedAt == nil {
			t.ClosedAt = &at
		}
	})
}

func (s *Store) updateTest(testID string, fn func(*domain.Test)) (domain.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrNotFound
	}
	fn(&test)
	s.tests[testID] = test
	return copyTest(test), nil
}

// LoadSnapshot returns the snapshot of a test at revision. A locked test never
// changes revision, so a mismatch means the caller holds a stale reference.
func (s *Store) LoadSnapshot(ctx context.Context, testID string, revision int) (domain.Snapshot, error) {
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if test.Revision != revision {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %s@%d: current revision %d", testID, revision, test.Revision)
	}
	return test.Snapshot(), nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[attempt.TestID]
	if !ok {
		return domain.ErrNotFound
	}
	key := attemptKey{testID: attempt.TestID, candidateID: attempt.CandidateID}
	if _, exists := s.byCandidate[key]; exists {
		return domain.ErrAlreadyAttempted
	}
	if test.Revision != attempt.SnapshotRevision {
		return domain.ErrConcurrentModification
	}
	if test.StatusAt(attempt.StartedAt) != domain.TestOpen {
		return domain.ErrTestNotOpen
	}
	if test.LockedAt == nil {
		lockedAt := attempt.StartedAt
		test.LockedAt = &lockedAt
		s.tests[test.ID] = test
	}
	s.byCandidate[key] = attempt.ID
	s.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	return s.withRankLocked(attempt), nil
}

func (s *Store) FindAttempt(_ context.Context, testID, candidateID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCandidate[attemptKey{testID: testID, candidateID: candidateID}]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	return s.withRankLocked(s.attempts[id]), nil
}

func (s *Store) ListAttempts(_ context.Context, testID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attemptsOfLocked(testID), nil
}

func (s *Store) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byQuestion := s.answers[attemptID]
	out := make([]domain.Answer, 0, len(byQuestion))
	for _, a := range byQuestion {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *Store) SaveAnswer(_ context.Context, answer domain.Answer, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if attempt.State != domain.AttemptInProgress {
		return 0, domain.ErrAttemptNotInProgress
	}
	if attempt.Version != expectedVersion {
		return 0, domain.ErrConcurrentModification
	}
	byQuestion, ok := s.answers[attempt.ID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		s.answers[attempt.ID] = byQuestion
	}
	byQuestion[answer.QuestionID] = answer
	attempt.Version++
	s.attempts[attempt.ID] = attempt
	return attempt.Version, nil
}

func (s *Store) CompleteAttempt(_ context.Context, attemptID string, expectedVersion int64, completion domain.Completion) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrNotFound
	}
	if attempt.Version != expectedVersion {
		return domain.Attempt{}, domain.ErrConcurrentModification
	}
	if attempt.State != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}
	attempt.State = domain.AttemptCompleted
	attempt.Completion = &completion
	attempt.Version++
	s.attempts[attemptID] = attempt
	return copyAttempt(attempt), nil
}

func (s *Store) ReplaceStandings(_ context.Context, testID string, rank func([]domain.Attempt) []domain.Standing) (domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[testID]; !ok {
		return domain.Leaderboard{}, domain.ErrNotFound
	}
	standings := rank(s.attemptsOfLocked(testID))
	s.standings[testID] = append([]domain.Standing(nil), standings...)
	s.generations[testID]++
	return domain.Leaderboard{TestID: testID, Generation: s.generations[testID], Entries: standings}, nil
}

func (s *Store) ListStandings(_ context.Context, testID string) (domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tests[testID]; !ok {
		return domain.Leaderboard{}, domain.ErrNotFound
	}
	return domain.Leaderboard{
		TestID:     testID,
		Generation: s.generations[testID],
		Entries:    append([]domain.Standing{}, s.standings[testID]...),
	}, nil
}

func (s *Store) attemptsOfLocked(testID string) []domain.Attempt {
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.TestID == testID {
			out = append(out, s.withRankLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) withRankLocked(a domain.Attempt) domain.Attempt {
	a = copyAttempt(a)
	for _, st := range s.standings[a.TestID] {
		if st.AttemptID == a.ID {
			rank := st.Rank
			a.Rank = &rank
			break
		}
	}
	return a
}

func copyTest(t domain.Test) domain.Test {
	questions := make([]domain.Question, len(t.Questions))
	for i, q := range t.Questions {
		questions[i] = copyQuestion(q)
	}
	t.Questions = questions
	return t
}

func copyQuestion(q domain.Question) domain.Question {
	q.Options = append([]domain.Option(nil), q.Options...)
	return q
}

func copyAttempt(a domain.Attempt) domain.Attempt {
	if a.Completion != nil {
		c := *a.Completion
		a.Completion = &c
	}
	a.Rank = nil
	return a
}
