package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/copier"
)

type catalogService interface {
	CreateTest(ctx context.Context, organizerID string, def domain.TestDefinition) (domain.Test, error)
	AddQuestion(ctx context.Context, testID, organizerID string, input domain.QuestionInput) (domain.Question, error)
	PublishTest(ctx context.Context, testID, organizerID string) (domain.Test, error)
	CloseTest(ctx context.Context, testID, organizerID string) (domain.Test, error)
	GetTest(ctx context.Context, testID string, actor domain.Actor) (app.TestView, error)
}

type attemptService interface {
	Start(ctx context.Context, testID, candidateID string) (app.StartResult, error)
	Answer(ctx context.Context, attemptID, candidateID, questionID, optionID string) (domain.Answer, error)
	Submit(ctx context.Context, attemptID, candidateID string) (app.SubmitResult, error)
	GetAttempt(ctx context.Context, attemptID, candidateID string) (domain.Attempt, error)
}

type rankingService interface {
	Results(ctx context.Context, testID, organizerID string) ([]domain.Standing, error)
	Subscribe(ctx context.Context, testID, organizerID string) (<-chan domain.Leaderboard, func(), error)
}

// Handler serves the REST API of the assessment engine.
type Handler struct {
	catalog  catalogService
	attempts attemptService
	ranking  rankingService
	now      func() time.Time
}

func NewHandler(catalog catalogService, attempts attemptService, ranking rankingService) *Handler {
	return &Handler{catalog: catalog, attempts: attempts, ranking: ranking, now: time.Now}
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type testResponse struct {
	ID              string              `json:"id"`
	OrganizerID     string              `json:"organizerId"`
	JobID           string              `json:"jobId,omitempty"`
	Title           string              `json:"title"`
	Status          domain.TestStatus   `json:"status"`
	OpensAt         *time.Time          `json:"opensAt,omitempty"`
	ClosesAt        *time.Time          `json:"closesAt,omitempty"`
	DurationMinutes int                 `json:"durationMinutes"`
	PassingScore    int                 `json:"passingScore"`
	Revision        int                 `json:"revision"`
	CreatedAt       time.Time           `json:"createdAt"`
	PublishedAt     *time.Time          `json:"publishedAt,omitempty"`
	ClosedAt        *time.Time          `json:"closedAt,omitempty"`
	LockedAt        *time.Time          `json:"lockedAt,omitempty"`
	Questions       []domain.Question   `json:"questions"`
	Summary         *domain.TestSummary `json:"summary,omitempty"`
}

type attemptResponse struct {
	ID                  string              `json:"id"`
	TestID              string              `json:"testId"`
	CandidateID         string              `json:"candidateId"`
	State               domain.AttemptState `json:"state"`
	StartedAt           time.Time           `json:"startedAt"`
	Deadline            *time.Time          `json:"deadline,omitempty"`
	TotalPossiblePoints int                 `json:"totalPossiblePoints"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	Score               *int                `json:"score,omitempty"`
	Passed              *bool               `json:"passed,omitempty"`
	Rank                *int                `json:"rank,omitempty"`
	RankPending         bool                `json:"rankPending,omitempty"`
}

type startResponse struct {
	Attempt attemptResponse          `json:"attempt"`
	Test    domain.CandidateSnapshot `json:"test"`
}

type standingResponse struct {
	Rank        int       `json:"rank"`
	AttemptID   string    `json:"attemptId"`
	CandidateID string    `json:"candidateId"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completedAt"`
}

func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	var def domain.TestDefinition
	if !decode(w, r, &def) {
		return
	}
	test, err := h.catalog.CreateTest(r.Context(), actorFrom(r.Context()).ID, def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeTest(w, r, http.StatusCreated, test)
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var input domain.QuestionInput
	if !decode(w, r, &input) {
		return
	}
	q, err := h.catalog.AddQuestion(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()).ID, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusCreated, q)
}

func (h *Handler) PublishTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.catalog.PublishTest(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeTest(w, r, http.StatusOK, test)
}

func (h *Handler) CloseTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.catalog.CloseTest(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeTest(w, r, http.StatusOK, test)
}

// GetTest serves both roles: candidates receive the projection without
// correctness flags, the owning organizer the full test and its summary.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	view, err := h.catalog.GetTest(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if view.Full != nil {
		resp, err := h.toTestResponse(*view.Full, view.Summary)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Status = view.Status
		writeOK(w, r, http.StatusOK, resp)
		return
	}
	writeOK(w, r, http.StatusOK, struct {
		Status domain.TestStatus `json:"status"`
		*domain.CandidateSnapshot
	}{Status: view.Status, CandidateSnapshot: view.Candidate})
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	res, err := h.attempts.Start(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempt, err := toAttemptResponse(res.Attempt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempt.Deadline = res.Deadline
	writeOK(w, r, http.StatusCreated, startResponse{Attempt: attempt, Test: res.Test})
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.QuestionID == "" || req.OptionID == "" {
		writeBadRequest(w, r, "questionId and optionId are required")
		return
	}
	answer, err := h.attempts.Answer(r.Context(), chi.URLParam(r, "attemptID"), actorFrom(r.Context()).ID, req.QuestionID, req.OptionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, answer)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.attempts.Submit(r.Context(), chi.URLParam(r, "attemptID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := toAttemptResponse(res.Attempt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.RankPending = res.RankPending
	writeOK(w, r, http.StatusOK, resp)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.attempts.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := toAttemptResponse(attempt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, resp)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	standings, err := h.ranking.Results(r.Context(), chi.URLParam(r, "testID"), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := []standingResponse{}
	if err := copier.Copy(&out, &standings); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, http.StatusOK, out)
}

func (h *Handler) writeTest(w http.ResponseWriter, r *http.Request, status int, test domain.Test) {
	resp, err := h.toTestResponse(test, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, status, resp)
}

func (h *Handler) toTestResponse(test domain.Test, summary *domain.TestSummary) (testResponse, error) {
	var resp testResponse
	if err := copier.Copy(&resp, &test); err != nil {
		return testResponse{}, fmt.Errorf("map test %s: %w", test.ID, err)
	}
	resp.Status = test.StatusAt(h.now())
	resp.Summary = summary
	return resp, nil
}

func toAttemptResponse(a domain.Attempt) (attemptResponse, error) {
	var resp attemptResponse
	if err := copier.Copy(&resp, &a); err != nil {
		return attemptResponse{}, fmt.Errorf("map attempt %s: %w", a.ID, err)
	}
	if c := a.Completion; c != nil {
		completedAt, score, passed := c.CompletedAt, c.Score, c.Passed
		resp.CompletedAt = &completedAt
		resp.Score = &score
		resp.Passed = &passed
	}
	return resp, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return false
	}
	return true
}
