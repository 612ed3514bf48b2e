// Package grading scores completed attempts against a frozen test snapshot.
package grading

import (
	"fmt"

	"assessment-engine/internal/domain"
)

// Reasons reported per question.
const (
	ReasonCorrect          = "correct"
	ReasonWrong            = "wrong"
	ReasonUnanswered       = "unanswered"
	ReasonInvalidReference = "invalid_reference"
)

// ItemResult is the grading outcome of one question.
type ItemResult struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
	Awarded    int    `json:"awarded"`
	Correct    bool   `json:"correct"`
	Reason     string `json:"reason"`
}

// Result is the grading outcome of an attempt.
type Result struct {
	Score         int          `json:"score"`
	TotalPossible int          `json:"totalPossible"`
	Passed        bool         `json:"passed"`
	Items         []ItemResult `json:"items"`
	// Violations lists snapshot invariants that did not hold. Grading still
	// completes; affected questions score zero.
	Violations []string `json:"-"`
}

// Grade scores answers against snap. It never fails: unanswered questions and
// answers outside the question/option graph count as incorrect, answers for
// questions not in the snapshot are ignored. The result depends only on the
// inputs, so regrading the same pair yields the same result.
func Grade(answers []domain.Answer, snap domain.Snapshot) Result {
	selected := make(map[string]string, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.OptionID
	}

	res := Result{
		TotalPossible: snap.TotalPoints(),
		Items:         make([]ItemResult, 0, len(snap.Questions)),
	}
	for _, q := range snap.Questions {
		if q.CorrectCount() == 0 {
			res.Violations = append(res.Violations, fmt.Sprintf("question %s has no correct option", q.ID))
		}

		item := ItemResult{QuestionID: q.ID}
		optionID, answered := selected[q.ID]
		switch {
		case !answered || optionID == "":
			item.Reason = ReasonUnanswered
		default:
			item.OptionID = optionID
			opt, ok := q.Option(optionID)
			switch {
			case !ok:
				item.Reason = ReasonInvalidReference
			case opt.Correct:
				item.Correct = true
				item.Awarded = q.Points
				item.Reason = ReasonCorrect
			default:
				item.Reason = ReasonWrong
			}
		}
		res.Score += item.Awarded
		res.Items = append(res.Items, item)
	}
	res.Passed = res.Score >= snap.PassingScore
	return res
}
