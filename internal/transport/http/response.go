package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"assessment-engine/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type errorPayload struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type meta struct {
	RequestID string `json:"request_id,omitempty"`
}

type envelope struct {
	OK    bool          `json:"ok"`
	Data  interface{}   `json:"data,omitempty"`
	Error *errorPayload `json:"error,omitempty"`
	Meta  meta          `json:"meta"`
}

// statusByCode maps stable error codes to HTTP statuses.
var statusByCode = map[string]int{
	domain.CodeForbidden:              http.StatusForbidden,
	domain.CodeNotFound:               http.StatusNotFound,
	domain.CodeInvalidDefinition:      http.StatusUnprocessableEntity,
	domain.CodeTestLocked:             http.StatusConflict,
	domain.CodeTestNotOpen:            http.StatusConflict,
	domain.CodeAlreadyAttempted:       http.StatusConflict,
	domain.CodeAttemptNotInProgress:   http.StatusConflict,
	domain.CodeAttemptExpired:         http.StatusGone,
	domain.CodeInvalidReference:       http.StatusUnprocessableEntity,
	domain.CodeConcurrentModification: http.StatusConflict,
}

const codeInvalidRequest = "invalid_request"

func writeOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, envelope{OK: true, Data: data, Meta: meta{RequestID: middleware.GetReqID(r.Context())}})
}

// writeError renders err with its stable code. Unexpected errors are logged
// and hidden behind internal_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.Code(err)
	status := statusByCode[code]
	message := err.Error()
	if !domain.IsExpected(err) {
		status = http.StatusInternalServerError
		message = http.StatusText(status)
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unexpected error")
	}

	payload := &errorPayload{Code: code, Message: message}
	var def *domain.InvalidDefinitionError
	if errors.As(err, &def) {
		payload.Message = domain.ErrInvalidDefinition.Error()
		payload.Details = def.Problems
	}
	write(w, status, envelope{Error: payload, Meta: meta{RequestID: middleware.GetReqID(r.Context())}})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	write(w, http.StatusBadRequest, envelope{
		Error: &errorPayload{Code: codeInvalidRequest, Message: message},
		Meta:  meta{RequestID: middleware.GetReqID(r.Context())},
	})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
