package http

import (
	"net/http"

	"assessment-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST API under /api/v1 plus a health check.
func NewRouter(h *Handler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(withActor)

		api.Get("/tests/{testID}", h.GetTest)

		api.Group(func(org chi.Router) {
			org.Use(requireRole(domain.RoleOrganizer))
			org.Post("/tests", h.CreateTest)
			org.Post("/tests/{testID}/questions", h.AddQuestion)
			org.Post("/tests/{testID}/publish", h.PublishTest)
			org.Post("/tests/{testID}/close", h.CloseTest)
			org.Get("/tests/{testID}/results", h.Results)
			org.Get("/tests/{testID}/standings/ws", ws.ServeWS)
		})

		api.Group(func(cand chi.Router) {
			cand.Use(requireRole(domain.RoleCandidate))
			cand.Post("/tests/{testID}/start", h.StartAttempt)
			cand.Post("/attempts/{attemptID}/answer", h.Answer)
			cand.Post("/attempts/{attemptID}/submit", h.Submit)
			cand.Get("/attempts/{attemptID}", h.GetAttempt)
		})
	})
	return r
}
