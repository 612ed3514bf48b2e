package domain

// Snapshot is an immutable view of a test's questions and options frozen at a
// revision. It keeps correctness flags and is used for grading; candidates get
// CandidateView instead.
type Snapshot struct {
	TestID          string     `json:"testId"`
	Revision        int        `json:"revision"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	PassingScore    int        `json:"passingScore"`
	Questions       []Question `json:"questions"`
}

// TotalPoints sums the point value of every question.
func (s Snapshot) TotalPoints() int {
	total := 0
	for _, q := range s.Questions {
		total += q.Points
	}
	return total
}

// Question returns the question with the given id.
func (s Snapshot) Question(questionID string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// ValidateReference checks that optionID belongs to questionID and questionID
// belongs to the snapshot.
func (s Snapshot) ValidateReference(questionID, optionID string) error {
	q, ok := s.Question(questionID)
	if !ok {
		return ErrInvalidReference
	}
	if _, ok := q.Option(optionID); !ok {
		return ErrInvalidReference
	}
	return nil
}

// CandidateOption is an option without its correctness flag.
type CandidateOption struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// CandidateQuestion is a question as shown to candidates.
type CandidateQuestion struct {
	ID       string            `json:"id"`
	Position int               `json:"position"`
	Prompt   string            `json:"prompt"`
	Points   int               `json:"points"`
	Kind     QuestionKind      `json:"kind"`
	Options  []CandidateOption `json:"options"`
}

// CandidateSnapshot is the candidate-facing projection of a snapshot.
type CandidateSnapshot struct {
	TestID              string              `json:"testId"`
	Title               string              `json:"title"`
	DurationMinutes     int                 `json:"durationMinutes"`
	PassingScore        int                 `json:"passingScore"`
	TotalPossiblePoints int                 `json:"totalPossiblePoints"`
	Questions           []CandidateQuestion `json:"questions"`
}

// CandidateView strips correctness flags.
func (s Snapshot) CandidateView() CandidateSnapshot {
	questions := make([]CandidateQuestion, 0, len(s.Questions))
	for _, q := range s.Questions {
		opts := make([]CandidateOption, 0, len(q.Options))
		for _, o := range q.Options {
			opts = append(opts, CandidateOption{ID: o.ID, Position: o.Position, Text: o.Text})
		}
		questions = append(questions, CandidateQuestion{
			ID:       q.ID,
			Position: q.Position,
			Prompt:   q.Prompt,
			Points:   q.Points,
			Kind:     q.Kind,
			Options:  opts,
		})
	}
	return CandidateSnapshot{
		TestID:              s.TestID,
		Title:               s.Title,
		DurationMinutes:     s.DurationMinutes,
		PassingScore:        s.PassingScore,
		TotalPossiblePoints: s.TotalPoints(),
		Questions:           questions,
	}
}
