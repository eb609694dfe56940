package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
)

// statusFor maps a typed domain error to the HTTP status spec.md's error
// handling design assigns it. Anything unrecognized is a 500.
func statusFor(err error) int {
	var (
		validationErr      *domain.ValidationError
		notFoundErr        *domain.WorkflowNotFoundError
		webhookNotFoundErr *domain.WebhookNotFoundError
		unpublishedErr     *domain.WorkflowUnpublishedError
		existsErr          *domain.WorkflowExistsError
		sessionErr         *domain.SessionNotFoundError
		gotoErr            *domain.GotoOverflowError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &webhookNotFoundErr):
		return http.StatusNotFound
	case errors.As(err, &unpublishedErr):
		return http.StatusForbidden
	case errors.As(err, &existsErr):
		return http.StatusConflict
	case errors.As(err, &sessionErr):
		return http.StatusNotFound
	case errors.As(err, &gotoErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
