package app

import (
	"context"
	"time"

	"assessment-engine/internal/domain"
	"github.com/google/uuid"
)

// CatalogService owns test definitions. Writes are restricted to the owning
// organizer and blocked once the test is locked by an attempt.
type CatalogService struct {
	tests    CatalogStore
	attempts AttemptStore
	now      func() time.Time
	newID    func() string
}

func NewCatalogService(tests CatalogStore, attempts AttemptStore, now func() time.Time) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{tests: tests, attempts: attempts, now: now, newID: uuid.NewString}
}

// TestView is the result of GetTest. Exactly one of Candidate or Full is set.
type TestView struct {
	Status    domain.TestStatus         `json:"status"`
	Candidate *domain.CandidateSnapshot `json:"candidate,omitempty"`
	Full      *domain.Test              `json:"full,omitempty"`
	Summary   *domain.TestSummary       `json:"summary,omitempty"`
}

// CreateTest stores a new Draft test owned by organizerID.
func (s *CatalogService) CreateTest(ctx context.Context, organizerID string, def domain.TestDefinition) (domain.Test, error) {
	if organizerID == "" {
		return domain.Test{}, domain.ErrForbidden
	}
	if err := def.Validate(); err != nil {
		return domain.Test{}, err
	}
	test := def.Build(organizerID, s.now(), s.newID)
	if err := s.tests.CreateTest(ctx, test); err != nil {
		return domain.Test{}, err
	}
	return test, nil
}

// AddQuestion appends a question to an unlocked test.
func (s *CatalogService) AddQuestion(ctx context.Context, testID, organizerID string, input domain.QuestionInput) (domain.Question, error) {
	if _, err := s.ownedTest(ctx, testID, organizerID); err != nil {
		return domain.Question{}, err
	}
	return s.tests.AddQuestion(ctx, testID, func(current domain.Test) (domain.Question, error) {
		if current.Locked() {
			return domain.Question{}, domain.ErrTestLocked
		}
		if err := input.Validate(current.Questions); err != nil {
			return domain.Question{}, err
		}
		pos := input.Position
		if pos == 0 {
			pos = current.NextPosition()
		}
		return input.Build(current.ID, pos, s.newID), nil
	})
}

// PublishTest moves a Draft test out of Draft. Publishing twice is a no-op.
func (s *CatalogService) PublishTest(ctx context.Context, testID, organizerID string) (domain.Test, error) {
	test, err := s.ownedTest(ctx, testID, organizerID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.PublishedAt != nil {
		return test, nil
	}
	if test.ClosedAt != nil {
		return domain.Test{}, &domain.InvalidDefinitionError{Problems: []string{"closed test cannot be published"}}
	}
	if len(test.Questions) == 0 {
		return domain.Test{}, &domain.InvalidDefinitionError{Problems: []string{"test has no questions"}}
	}
	return s.tests.PublishTest(ctx, testID, s.now())
}

// CloseTest closes the test for new attempts. Closing twice is a no-op.
func (s *CatalogService) CloseTest(ctx context.Context, testID, organizerID string) (domain.Test, error) {
	test, err := s.ownedTest(ctx, testID, organizerID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.ClosedAt != nil {
		return test, nil
	}
	return s.tests.CloseTest(ctx, testID, s.now())
}

// GetTestForAttempt returns the current snapshot of a test, correctness flags
// included. Callers hand candidates Snapshot.CandidateView only.
func (s *CatalogService) GetTestForAttempt(ctx context.Context, testID string) (domain.Snapshot, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return test.Snapshot(), nil
}

// GetTest returns the view of a test appropriate for actor: the owning
// organizer sees correctness flags and aggregate results, candidates see the
// candidate projection of published tests.
func (s *CatalogService) GetTest(ctx context.Context, testID string, actor domain.Actor) (TestView, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return TestView{}, err
	}
	status := test.StatusAt(s.now())

	switch actor.Role {
	case domain.RoleOrganizer:
		if actor.ID == "" || actor.ID != test.OrganizerID {
			return TestView{}, domain.ErrForbidden
		}
		attempts, err := s.attempts.ListAttempts(ctx, testID)
		if err != nil {
			return TestView{}, err
		}
		summary := domain.Summarize(attempts)
		return TestView{Status: status, Full: &test, Summary: &summary}, nil
	case domain.RoleCandidate:
		if status == domain.TestDraft {
			return TestView{}, domain.ErrNotFound
		}
		view := test.Snapshot().CandidateView()
		return TestView{Status: status, Candidate: &view}, nil
	default:
		return TestView{}, domain.ErrForbidden
	}
}

func (s *CatalogService) ownedTest(ctx context.Context, testID, organizerID string) (domain.Test, error) {
	if organizerID == "" {
		return domain.Test{}, domain.ErrForbidden
	}
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.OrganizerID != organizerID {
		return domain.Test{}, domain.ErrForbidden
	}
	return test, nil
}

// ownerOf checks that organizerID owns testID.
func ownerOf(ctx context.Context, tests CatalogStore, testID, organizerID string) error {
	if organizerID == "" {
		return domain.ErrForbidden
	}
	test, err := tests.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.OrganizerID != organizerID {
		return domain.ErrForbidden
	}
	return nil
}
