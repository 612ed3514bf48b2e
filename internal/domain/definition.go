package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxDurationMinutes caps the time limit of a test at one week.
const MaxDurationMinutes = 7 * 24 * 60

// OptionInput is authoring input for an option.
type OptionInput struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// QuestionInput is authoring input for a question. Position 0 means "append".
type QuestionInput struct {
	Position int           `json:"position"`
	Prompt   string        `json:"prompt"`
	Points   int           `json:"points"`
	Kind     QuestionKind  `json:"kind"`
	Options  []OptionInput `json:"options"`
}

// TestDefinition is authoring input for a test.
type TestDefinition struct {
	Title           string          `json:"title"`
	JobID           string          `json:"jobId"`
	OpensAt         *time.Time      `json:"opensAt"`
	ClosesAt        *time.Time      `json:"closesAt"`
	DurationMinutes int             `json:"durationMinutes"`
	PassingScore    int             `json:"passingScore"`
	Questions       []QuestionInput `json:"questions"`
}

func (q QuestionInput) kind() QuestionKind {
	if q.Kind == "" {
		return QuestionSingle
	}
	return q.Kind
}

func (q QuestionInput) problems(label string) []string {
	var out []string
	if q.Position < 0 {
		out = append(out, label+": position must not be negative")
	}
	if q.Points <= 0 {
		out = append(out, label+": points must be a positive integer")
	}
	kind := q.kind()
	if kind != QuestionSingle && kind != QuestionAny {
		out = append(out, fmt.Sprintf("%s: unknown kind %q", label, q.Kind))
	}
	if len(q.Options) == 0 {
		out = append(out, label+": at least one option is required")
		return out
	}
	correct := 0
	for _, o := range q.Options {
		if o.Correct {
			correct++
		}
	}
	switch {
	case correct == 0:
		out = append(out, label+": at least one option must be correct")
	case kind == QuestionSingle && correct > 1:
		out = append(out, label+": single-answer question must have exactly one correct option")
	}
	return out
}

// Validate checks a standalone question against the existing questions of a test.
func (q QuestionInput) Validate(existing []Question) error {
	problems := q.problems("question")
	if q.Position > 0 {
		for _, e := range existing {
			if e.Position == q.Position {
				problems = append(problems, fmt.Sprintf("question: position %d already used", q.Position))
				break
			}
		}
	}
	return invalid(problems)
}

// Build materializes the question with fresh ids.
func (q QuestionInput) Build(testID string, position int, newID func() string) Question {
	question := Question{
		ID:       newID(),
		TestID:   testID,
		Position: position,
		Prompt:   strings.TrimSpace(q.Prompt),
		Points:   q.Points,
		Kind:     q.kind(),
		Options:  make([]Option, 0, len(q.Options)),
	}
	for i, o := range q.Options {
		question.Options = append(question.Options, Option{
			ID:         newID(),
			QuestionID: question.ID,
			Position:   i + 1,
			Text:       strings.TrimSpace(o.Text),
			Correct:    o.Correct,
		})
	}
	return question
}

// Validate checks the whole definition including inline questions.
func (d TestDefinition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if d.DurationMinutes < 0 {
		problems = append(problems, "durationMinutes must not be negative")
	}
	if d.DurationMinutes > MaxDurationMinutes {
		problems = append(problems, fmt.Sprintf("durationMinutes must not exceed %d", MaxDurationMinutes))
	}
	if d.PassingScore < 0 {
		problems = append(problems, "passingScore must not be negative")
	}
	if d.OpensAt != nil && d.ClosesAt != nil && !d.ClosesAt.After(*d.OpensAt) {
		problems = append(problems, "closesAt must be after opensAt")
	}
	seen := make(map[int]bool, len(d.Questions))
	for i, pos := range assignPositions(d.Questions) {
		label := fmt.Sprintf("question %d", i+1)
		problems = append(problems, d.Questions[i].problems(label)...)
		if seen[pos] {
			problems = append(problems, fmt.Sprintf("%s: position %d already used", label, pos))
		}
		seen[pos] = true
	}
	return invalid(problems)
}

// assignPositions resolves the position of each inline question; zero means
// one past the highest position assigned so far.
func assignPositions(questions []QuestionInput) []int {
	out := make([]int, len(questions))
	max := 0
	for i, q := range questions {
		pos := q.Position
		if pos <= 0 {
			pos = max + 1
		}
		if pos > max {
			max = pos
		}
		out[i] = pos
	}
	return out
}

// Build materializes the test in Draft with fresh ids.
func (d TestDefinition) Build(organizerID string, now time.Time, newID func() string) Test {
	test := Test{
		ID:              newID(),
		OrganizerID:     organizerID,
		JobID:           strings.TrimSpace(d.JobID),
		Title:           strings.TrimSpace(d.Title),
		OpensAt:         d.OpensAt,
		ClosesAt:        d.ClosesAt,
		DurationMinutes: d.DurationMinutes,
		PassingScore:    d.PassingScore,
		Revision:        1,
		CreatedAt:       now,
	}
	positions := assignPositions(d.Questions)
	for i, q := range d.Questions {
		test.Questions = append(test.Questions, q.Build(test.ID, positions[i], newID))
	}
	test.SortQuestions()
	return test
}
