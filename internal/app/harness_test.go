package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store    *memory.Store
	feeds    *memory.FeedStore
	clock    *fakeClock
	catalog  *app.CatalogService
	attempts *app.AttemptService
	ranking  *app.RankingService
}

func newHarness() *harness {
	return newHarnessWith(harnessConfig{})
}

// newHarnessWithStandings lets a test swap the standings store.
func newHarnessWithStandings(standings app.StandingsStore) *harness {
	return newHarnessWith(harnessConfig{
		standings: func(*memory.Store) app.StandingsStore { return standings },
	})
}

// harnessConfig wraps parts of the memory store seen by the services. The
// catalog always talks to the plain store.
type harnessConfig struct {
	attempts   func(*memory.Store) app.AttemptStore
	standings  func(*memory.Store) app.StandingsStore
	publishers []app.StandingsPublisher
}

func newHarnessWith(cfg harnessConfig) *harness {
	store := memory.NewStore()
	var attempts app.AttemptStore = store
	if cfg.attempts != nil {
		attempts = cfg.attempts(store)
	}
	var standings app.StandingsStore = store
	if cfg.standings != nil {
		standings = cfg.standings(store)
	}
	feeds := memory.NewFeedStore()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	ranking := app.NewRankingService(store, standings, feeds, clock.Now, cfg.publishers...)
	return &harness{
		store:    store,
		feeds:    feeds,
		clock:    clock,
		catalog:  app.NewCatalogService(store, store, clock.Now),
		attempts: app.NewAttemptService(store, attempts, memory.NewSnapshotCache(store, time.Minute), ranking, clock.Now),
		ranking:  ranking,
	}
}

// hookedAttempts runs a hook once right before the matching store call, so a
// test can slip a competing operation between a service's read and write.
type hookedAttempts struct {
	*memory.Store

	mu                sync.Mutex
	beforeCreate      func()
	beforeListAnswers func()
	beforeSaveAnswer  func()
	beforeComplete    func()
}

func (s *hookedAttempts) take(hook *func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := *hook
	*hook = nil
	return fn
}

func (s *hookedAttempts) run(hook *func()) {
	if fn := s.take(hook); fn != nil {
		fn()
	}
}

func (s *hookedAttempts) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	s.run(&s.beforeCreate)
	return s.Store.CreateAttempt(ctx, attempt)
}

func (s *hookedAttempts) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	s.run(&s.beforeListAnswers)
	return s.Store.ListAnswers(ctx, attemptID)
}

func (s *hookedAttempts) SaveAnswer(ctx context.Context, answer domain.Answer, expectedVersion int64) (int64, error) {
	s.run(&s.beforeSaveAnswer)
	return s.Store.SaveAnswer(ctx, answer, expectedVersion)
}

func (s *hookedAttempts) CompleteAttempt(ctx context.Context, attemptID string, expectedVersion int64, completion domain.Completion) (domain.Attempt, error) {
	s.run(&s.beforeComplete)
	return s.Store.CompleteAttempt(ctx, attemptID, expectedVersion, completion)
}

// newHookedHarness returns a harness whose attempt service goes through the
// returned hookedAttempts.
func newHookedHarness() (*harness, *hookedAttempts) {
	hooked := &hookedAttempts{}
	h := newHarnessWith(harnessConfig{
		attempts: func(store *memory.Store) app.AttemptStore {
			hooked.Store = store
			return hooked
		},
	})
	return h, hooked
}

const organizer = "org-1"

// twoQuestionDefinition: Q1 worth 5 (first option correct), Q2 worth 3
// (third option correct), passing at 5, 30 minute limit.
func twoQuestionDefinition() domain.TestDefinition {
	return domain.TestDefinition{
		Title:           "Backend screening",
		DurationMinutes: 30,
		PassingScore:    5,
		Questions: []domain.QuestionInput{
			{Prompt: "Q1", Points: 5, Options: []domain.OptionInput{{Text: "A", Correct: true}, {Text: "B"}, {Text: "C"}}},
			{Prompt: "Q2", Points: 3, Options: []domain.OptionInput{{Text: "A"}, {Text: "B"}, {Text: "C", Correct: true}}},
		},
	}
}

func (h *harness) openTest(t *testing.T, def domain.TestDefinition) domain.Test {
	t.Helper()
	ctx := context.Background()
	test, err := h.catalog.CreateTest(ctx, organizer, def)
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	test, err = h.catalog.PublishTest(ctx, test.ID, organizer)
	if err != nil {
		t.Fatalf("publish test: %v", err)
	}
	return test
}

func (h *harness) start(t *testing.T, testID, candidate string) domain.Attempt {
	t.Helper()
	res, err := h.attempts.Start(context.Background(), testID, candidate)
	if err != nil {
		t.Fatalf("start %s: %v", candidate, err)
	}
	return res.Attempt
}

func (h *harness) answer(t *testing.T, attempt domain.Attempt, q domain.Question, option int) {
	t.Helper()
	_, err := h.attempts.Answer(context.Background(), attempt.ID, attempt.CandidateID, q.ID, q.Options[option].ID)
	if err != nil {
		t.Fatalf("answer %s: %v", q.Prompt, err)
	}
}

func (h *harness) submit(t *testing.T, attempt domain.Attempt) app.SubmitResult {
	t.Helper()
	res, err := h.attempts.Submit(context.Background(), attempt.ID, attempt.CandidateID)
	if err != nil {
		t.Fatalf("submit %s: %v", attempt.CandidateID, err)
	}
	return res
}
