package domain

import (
	"testing"
	"time"
)

func completed(id string, score int, at time.Time) Attempt {
	return Attempt{
		ID:          id,
		CandidateID: "cand-" + id,
		State:       AttemptCompleted,
		Completion:  &Completion{CompletedAt: at, Score: score, Passed: score >= 60},
	}
}

func TestRankAttemptsTieBreaksByCompletion(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(time.Minute), base.Add(2*time.Minute)

	// scores [80,80,60] completed in order [t2,t1,t3]
	attempts := []Attempt{
		completed("a", 80, t2),
		completed("b", 80, t1),
		completed("c", 60, t3),
		{ID: "d", State: AttemptInProgress},
	}
	standings := RankAttempts("test-1", attempts)

	if len(standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(standings))
	}
	want := map[string]int{"b": 1, "a": 2, "c": 3}
	for _, s := range standings {
		if s.Rank != want[s.AttemptID] {
			t.Fatalf("attempt %s: expected rank %d, got %d", s.AttemptID, want[s.AttemptID], s.Rank)
		}
		if s.TestID != "test-1" {
			t.Fatalf("expected test id on standing, got %q", s.TestID)
		}
	}
}

func TestRankAttemptsIsDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := RankAttempts("t", []Attempt{completed("z", 50, at), completed("m", 50, at), completed("b", 50, at)})
	second := RankAttempts("t", []Attempt{completed("b", 50, at), completed("z", 50, at), completed("m", 50, at)})

	for i := range first {
		if first[i].AttemptID != second[i].AttemptID || first[i].Rank != second[i].Rank {
			t.Fatalf("ranking depends on input order: %+v vs %+v", first, second)
		}
	}
	if first[0].AttemptID != "b" {
		t.Fatalf("expected attempt id to break exact ties, got %s first", first[0].AttemptID)
	}
}

func TestSummarize(t *testing.T) {
	at := time.Now()
	s := Summarize([]Attempt{
		completed("a", 80, at),
		completed("b", 40, at),
		{ID: "c", State: AttemptInProgress},
	})
	if s.Attempts != 3 || s.Completed != 2 || s.Passed != 1 || s.BestScore != 80 || s.AverageScore != 60 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}
