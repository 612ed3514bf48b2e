package domain

import (
	"sort"
	"time"
)

// TestStatus is the lifecycle status of a test at a given instant.
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestScheduled TestStatus = "scheduled"
	TestOpen      TestStatus = "open"
	TestClosed    TestStatus = "closed"
)

// QuestionKind controls how many options may be marked correct.
type QuestionKind string

const (
	// QuestionSingle has exactly one correct option.
	QuestionSingle QuestionKind = "single"
	// QuestionAny has one or more correct options; selecting any of them scores.
	QuestionAny QuestionKind = "any"
)

// Option is one selectable answer of a question.
type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question is an ordered MCQ item of a test.
type Question struct {
	ID       string       `json:"id"`
	TestID   string       `json:"testId"`
	Position int          `json:"position"`
	Prompt   string       `json:"prompt"`
	Points   int          `json:"points"`
	Kind     QuestionKind `json:"kind"`
	Options  []Option     `json:"options"`
}

// Option returns the option with the given id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return Option{}, false
}

// CorrectCount returns the number of options flagged correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.Correct {
			n++
		}
	}
	return n
}

// Test is an organizer-authored assessment.
type Test struct {
	ID              string     `json:"id"`
	OrganizerID     string     `json:"organizerId"`
	JobID           string     `json:"jobId,omitempty"`
	Title           string     `json:"title"`
	Questions       []Question `json:"questions"`
	OpensAt         *time.Time `json:"opensAt,omitempty"`
	ClosesAt        *time.Time `json:"closesAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	PassingScore    int        `json:"passingScore"`
	Revision        int        `json:"revision"`
	CreatedAt       time.Time  `json:"createdAt"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	LockedAt        *time.Time `json:"lockedAt,omitempty"`
}

// StatusAt derives the lifecycle status at now.
func (t Test) StatusAt(now time.Time) TestStatus {
	switch {
	case t.PublishedAt == nil:
		return TestDraft
	case t.ClosedAt != nil:
		return TestClosed
	case t.ClosesAt != nil && !now.Before(*t.ClosesAt):
		return TestClosed
	case t.OpensAt != nil && now.Before(*t.OpensAt):
		return TestScheduled
	default:
		return TestOpen
	}
}

// Locked reports whether any attempt references the test.
func (t Test) Locked() bool {
	return t.LockedAt != nil
}

// SortQuestions orders questions and their options by position.
func (t *Test) SortQuestions() {
	sort.SliceStable(t.Questions, func(i, j int) bool {
		return t.Questions[i].Position < t.Questions[j].Position
	})
	for i := range t.Questions {
		opts := t.Questions[i].Options
		sort.SliceStable(opts, func(a, b int) bool { return opts[a].Position < opts[b].Position })
	}
}

// NextPosition returns the position a newly appended question receives.
func (t Test) NextPosition() int {
	max := 0
	for _, q := range t.Questions {
		if q.Position > max {
			max = q.Position
		}
	}
	return max + 1
}

// Snapshot freezes a test's grading inputs at a revision.
func (t Test) Snapshot() Snapshot {
	questions := make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Options = append([]Option(nil), q.Options...)
		questions[i] = q
	}
	return Snapshot{
		TestID:          t.ID,
		Revision:        t.Revision,
		Title:           t.Title,
		DurationMinutes: t.DurationMinutes,
		PassingScore:    t.PassingScore,
		Questions:       questions,
	}
}

// AttemptState is the explicit state of an attempt.
type AttemptState string

const (
	AttemptInProgress AttemptState = "in_progress"
	AttemptCompleted  AttemptState = "completed"
)

// Completion holds the attributes that only exist once an attempt is graded.
type Completion struct {
	CompletedAt time.Time `json:"completedAt"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
}

// Attempt is one candidate's single run against one test.
type Attempt struct {
	ID                  string       `json:"id"`
	TestID              string       `json:"testId"`
	CandidateID         string       `json:"candidateId"`
	State               AttemptState `json:"state"`
	StartedAt           time.Time    `json:"startedAt"`
	SnapshotRevision    int          `json:"snapshotRevision"`
	TotalPossiblePoints int          `json:"totalPossiblePoints"`
	Version             int64        `json:"version"`
	Completion          *Completion  `json:"completion,omitempty"`
	Rank                *int         `json:"rank,omitempty"`
}

// Deadline returns the instant after which the attempt can no longer be
// submitted. ok is false when the test has no duration limit.
func (a Attempt) Deadline(durationMinutes int) (time.Time, bool) {
	if durationMinutes <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(durationMinutes) * time.Minute), true
}

// ExpiredAt reports whether now is past the attempt's deadline.
func (a Attempt) ExpiredAt(now time.Time, durationMinutes int) bool {
	deadline, ok := a.Deadline(durationMinutes)
	return ok && now.After(deadline)
}

// Answer is the candidate's current selection for one question.
type Answer struct {
	AttemptID  string    `json:"attemptId"`
	QuestionID string    `json:"questionId"`
	OptionID   string    `json:"optionId"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Standing is one row of the derived ranking of a test.
type Standing struct {
	TestID      string    `json:"testId"`
	AttemptID   string    `json:"attemptId"`
	CandidateID string    `json:"candidateId"`
	Rank        int       `json:"rank"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completedAt"`
}

// Leaderboard is the published standings of a test. Generation increases by
// one with every stored recompute of the test; consumers keep the highest.
type Leaderboard struct {
	TestID     string     `json:"testId"`
	Generation int64      `json:"generation"`
	Entries    []Standing `json:"entries"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Supersedes reports whether lb is newer than other.
func (lb Leaderboard) Supersedes(other Leaderboard) bool {
	return lb.Generation > other.Generation
}

// TestSummary aggregates completed results for the organizer view.
type TestSummary struct {
	Attempts     int     `json:"attempts"`
	Completed    int     `json:"completed"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"averageScore"`
	BestScore    int     `json:"bestScore"`
}

// Role is the caller's role as asserted by the identity collaborator.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleCandidate Role = "candidate"
)

// Actor identifies the caller of an operation.
type Actor struct {
	ID   string
	Role Role
}
