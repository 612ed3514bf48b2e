package domain

import "sort"

// rankedBefore orders standings: higher score first, earlier completion wins
// ties, attempt id keeps equal timestamps deterministic.
func rankedBefore(a, b Standing) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.AttemptID < b.AttemptID
}

// RankAttempts builds the standings of a test from its attempts. Attempts that
// are not completed are skipped. Ranks are 1..N and distinct.
func RankAttempts(testID string, attempts []Attempt) []Standing {
	standings := make([]Standing, 0, len(attempts))
	for _, a := range attempts {
		if a.State != AttemptCompleted || a.Completion == nil {
			continue
		}
		standings = append(standings, Standing{
			TestID:      testID,
			AttemptID:   a.ID,
			CandidateID: a.CandidateID,
			Score:       a.Completion.Score,
			Passed:      a.Completion.Passed,
			CompletedAt: a.Completion.CompletedAt,
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		return rankedBefore(standings[i], standings[j])
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// Summarize aggregates attempts for the organizer view.
func Summarize(attempts []Attempt) TestSummary {
	var s TestSummary
	total := 0
	for _, a := range attempts {
		s.Attempts++
		if a.State != AttemptCompleted || a.Completion == nil {
			continue
		}
		s.Completed++
		if a.Completion.Passed {
			s.Passed++
		}
		if s.Completed == 1 || a.Completion.Score > s.BestScore {
			s.BestScore = a.Completion.Score
		}
		total += a.Completion.Score
	}
	if s.Completed > 0 {
		s.AverageScore = float64(total) / float64(s.Completed)
	}
	return s
}
