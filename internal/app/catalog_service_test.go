package app_test

import (
	"context"
	"errors"
	"testing"

	"assessment-engine/internal/domain"
)

func TestCreateTestValidates(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.catalog.CreateTest(ctx, "", twoQuestionDefinition()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without organizer, got %v", err)
	}

	bad := twoQuestionDefinition()
	bad.Title = "  "
	bad.Questions[1].Options[0].Correct = true // two correct on a single question
	_, err := h.catalog.CreateTest(ctx, organizer, bad)
	var def *domain.InvalidDefinitionError
	if !errors.As(err, &def) || !errors.Is(err, domain.ErrInvalidDefinition) {
		t.Fatalf("expected InvalidDefinitionError, got %v", err)
	}
	if len(def.Problems) != 2 {
		t.Fatalf("expected two problems, got %v", def.Problems)
	}

	test, err := h.catalog.CreateTest(ctx, organizer, twoQuestionDefinition())
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	if test.StatusAt(h.clock.Now()) != domain.TestDraft || test.Revision != 1 {
		t.Fatalf("expected draft at revision 1, got %+v", test)
	}
}

func TestAddQuestionRules(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	test, err := h.catalog.CreateTest(ctx, organizer, domain.TestDefinition{Title: "Empty", PassingScore: 1})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}

	valid := domain.QuestionInput{Prompt: "Pick", Points: 2, Options: []domain.OptionInput{{Text: "x", Correct: true}, {Text: "y"}}}
	cases := []struct {
		name      string
		testID    string
		organizer string
		input     domain.QuestionInput
		want      error
	}{
		{name: "unknown test", testID: "missing", organizer: organizer, input: valid, want: domain.ErrNotFound},
		{name: "not the owner", testID: test.ID, organizer: "org-2", input: valid, want: domain.ErrForbidden},
		{name: "no options", testID: test.ID, organizer: organizer, input: domain.QuestionInput{Prompt: "p", Points: 1}, want: domain.ErrInvalidDefinition},
		{name: "no correct option", testID: test.ID, organizer: organizer, input: domain.QuestionInput{Prompt: "p", Points: 1, Options: []domain.OptionInput{{Text: "x"}}}, want: domain.ErrInvalidDefinition},
		{name: "zero points", testID: test.ID, organizer: organizer, input: domain.QuestionInput{Prompt: "p", Options: []domain.OptionInput{{Text: "x", Correct: true}}}, want: domain.ErrInvalidDefinition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.catalog.AddQuestion(ctx, tc.testID, tc.organizer, tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	first, err := h.catalog.AddQuestion(ctx, test.ID, organizer, valid)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	second, err := h.catalog.AddQuestion(ctx, test.ID, organizer, valid)
	if err != nil {
		t.Fatalf("add second question: %v", err)
	}
	if first.Position != 1 || second.Position != 2 {
		t.Fatalf("expected positions 1 and 2, got %d and %d", first.Position, second.Position)
	}

	dup := valid
	dup.Position = 2
	if _, err := h.catalog.AddQuestion(ctx, test.ID, organizer, dup); !errors.Is(err, domain.ErrInvalidDefinition) {
		t.Fatalf("expected duplicate position rejected, got %v", err)
	}

	stored, _ := h.store.GetTest(ctx, test.ID)
	if stored.Revision != 3 {
		t.Fatalf("expected revision 3 after two adds, got %d", stored.Revision)
	}
}

func TestPublishAndClose(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	empty, _ := h.catalog.CreateTest(ctx, organizer, domain.TestDefinition{Title: "Empty"})
	if _, err := h.catalog.PublishTest(ctx, empty.ID, organizer); !errors.Is(err, domain.ErrInvalidDefinition) {
		t.Fatalf("expected empty test not publishable, got %v", err)
	}

	test := h.openTest(t, twoQuestionDefinition())
	if test.StatusAt(h.clock.Now()) != domain.TestOpen {
		t.Fatalf("expected open after publish, got %s", test.StatusAt(h.clock.Now()))
	}
	again, err := h.catalog.PublishTest(ctx, test.ID, organizer)
	if err != nil || !again.PublishedAt.Equal(*test.PublishedAt) {
		t.Fatalf("expected publish to be idempotent: %v", err)
	}

	if _, err := h.catalog.CloseTest(ctx, test.ID, "org-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	closed, err := h.catalog.CloseTest(ctx, test.ID, organizer)
	if err != nil || closed.StatusAt(h.clock.Now()) != domain.TestClosed {
		t.Fatalf("expected closed test: %v", err)
	}
	if _, err := h.catalog.CloseTest(ctx, test.ID, organizer); err != nil {
		t.Fatalf("expected close to be idempotent, got %v", err)
	}
}

func TestGetTestViews(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	test := h.openTest(t, twoQuestionDefinition())
	attempt := h.start(t, test.ID, "cand-1")
	h.answer(t, attempt, test.Questions[0], 0)
	h.submit(t, attempt)
	h.start(t, test.ID, "cand-2")

	view, err := h.catalog.GetTest(ctx, test.ID, domain.Actor{ID: "cand-3", Role: domain.RoleCandidate})
	if err != nil {
		t.Fatalf("candidate view: %v", err)
	}
	if view.Full != nil || view.Summary != nil || view.Candidate == nil {
		t.Fatalf("candidate must only get the candidate projection, got %+v", view)
	}
	if view.Candidate.TotalPossiblePoints != 8 || len(view.Candidate.Questions) != 2 {
		t.Fatalf("unexpected candidate view %+v", view.Candidate)
	}

	full, err := h.catalog.GetTest(ctx, test.ID, domain.Actor{ID: organizer, Role: domain.RoleOrganizer})
	if err != nil {
		t.Fatalf("organizer view: %v", err)
	}
	if full.Full == nil || full.Summary == nil {
		t.Fatalf("expected full view with summary, got %+v", full)
	}
	want := domain.TestSummary{Attempts: 2, Completed: 1, Passed: 1, AverageScore: 5, BestScore: 5}
	if *full.Summary != want {
		t.Fatalf("expected summary %+v, got %+v", want, *full.Summary)
	}

	if _, err := h.catalog.GetTest(ctx, test.ID, domain.Actor{ID: "org-2", Role: domain.RoleOrganizer}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign organizer, got %v", err)
	}

	draft, _ := h.catalog.CreateTest(ctx, organizer, twoQuestionDefinition())
	if _, err := h.catalog.GetTest(ctx, draft.ID, domain.Actor{ID: "cand-1", Role: domain.RoleCandidate}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected draft hidden from candidates, got %v", err)
	}
}

func TestGetTestForAttemptKeepsCorrectness(t *testing.T) {
	h := newHarness()
	test := h.openTest(t, twoQuestionDefinition())

	snap, err := h.catalog.GetTestForAttempt(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Revision != test.Revision || !snap.Questions[0].Options[0].Correct {
		t.Fatalf("expected snapshot with correctness flags, got %+v", snap)
	}
}
