package grading

import (
	"reflect"
	"testing"

	"assessment-engine/internal/domain"
)

// twoQuestionSnapshot: Q1 worth 5 (correct A), Q2 worth 3 (correct C), pass at 5.
func twoQuestionSnapshot() domain.Snapshot {
	return domain.Snapshot{
		TestID:       "test-1",
		PassingScore: 5,
		Questions: []domain.Question{
			{ID: "q1", Position: 1, Points: 5, Options: []domain.Option{
				{ID: "q1-a", Correct: true}, {ID: "q1-b"}, {ID: "q1-c"},
			}},
			{ID: "q2", Position: 2, Points: 3, Options: []domain.Option{
				{ID: "q2-a"}, {ID: "q2-b"}, {ID: "q2-c", Correct: true},
			}},
		},
	}
}

func TestGradeScenario(t *testing.T) {
	res := Grade([]domain.Answer{
		{QuestionID: "q1", OptionID: "q1-a"},
		{QuestionID: "q2", OptionID: "q2-b"},
	}, twoQuestionSnapshot())

	if res.Score != 5 || res.TotalPossible != 8 || !res.Passed {
		t.Fatalf("expected score=5 total=8 passed, got %+v", res)
	}
	if res.Items[0].Reason != ReasonCorrect || res.Items[1].Reason != ReasonWrong {
		t.Fatalf("unexpected item reasons: %+v", res.Items)
	}
}

func TestGradeFullyCorrect(t *testing.T) {
	snap := twoQuestionSnapshot()
	snap.PassingScore = 9
	res := Grade([]domain.Answer{
		{QuestionID: "q1", OptionID: "q1-a"},
		{QuestionID: "q2", OptionID: "q2-c"},
	}, snap)

	if res.Score != snap.TotalPoints() || res.Score != res.TotalPossible {
		t.Fatalf("expected full marks, got %+v", res)
	}
	if res.Passed {
		t.Fatalf("expected fail when passing score exceeds total")
	}
}

func TestGradeToleratesBadInput(t *testing.T) {
	tests := []struct {
		name    string
		answers []domain.Answer
		score   int
		reasons []string
	}{
		{name: "nothing answered", answers: nil, score: 0, reasons: []string{ReasonUnanswered, ReasonUnanswered}},
		{name: "option of another question", answers: []domain.Answer{{QuestionID: "q1", OptionID: "q2-c"}}, score: 0, reasons: []string{ReasonInvalidReference, ReasonUnanswered}},
		{name: "question outside test", answers: []domain.Answer{{QuestionID: "zz", OptionID: "q1-a"}, {QuestionID: "q2", OptionID: "q2-c"}}, score: 3, reasons: []string{ReasonUnanswered, ReasonCorrect}},
		{name: "empty option", answers: []domain.Answer{{QuestionID: "q1"}}, score: 0, reasons: []string{ReasonUnanswered, ReasonUnanswered}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Grade(tc.answers, twoQuestionSnapshot())
			if res.Score != tc.score {
				t.Fatalf("expected score %d, got %d", tc.score, res.Score)
			}
			var reasons []string
			for _, item := range res.Items {
				reasons = append(reasons, item.Reason)
			}
			if !reflect.DeepEqual(reasons, tc.reasons) {
				t.Fatalf("expected reasons %v, got %v", tc.reasons, reasons)
			}
		})
	}
}

func TestGradeReportsViolationsWithoutFailing(t *testing.T) {
	snap := twoQuestionSnapshot()
	snap.Questions[1].Options[2].Correct = false

	res := Grade([]domain.Answer{{QuestionID: "q2", OptionID: "q2-c"}}, snap)
	if len(res.Violations) != 1 {
		t.Fatalf("expected one violation, got %v", res.Violations)
	}
	if res.Score != 0 {
		t.Fatalf("question without a correct option must score zero, got %d", res.Score)
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	answers := []domain.Answer{{QuestionID: "q2", OptionID: "q2-c"}, {QuestionID: "q1", OptionID: "q1-b"}}
	first := Grade(answers, twoQuestionSnapshot())
	second := Grade(answers, twoQuestionSnapshot())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("grading differs between runs: %+v vs %+v", first, second)
	}
}
