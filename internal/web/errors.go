package web

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/writeright/writeright/internal/auth"
	"github.com/writeright/writeright/internal/engine"
	"github.com/writeright/writeright/internal/game"
	"github.com/writeright/writeright/internal/llm"
	"github.com/writeright/writeright/internal/store"
)

// statusFor maps service errors onto HTTP statuses. Anything
// unrecognized is a 500.
func statusFor(err error) int {
	var constraint *store.ConstraintError
	var transport *llm.TransportError
	var schema *llm.SchemaError
	switch {
	case errors.Is(err, auth.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrNoQuestions):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, game.ErrSessionClosed),
		errors.As(err, &constraint):
		return http.StatusConflict
	case errors.Is(err, game.ErrUnknownQuestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrConnectivity),
		errors.Is(err, llm.ErrIncompleteResponse),
		errors.As(err, &transport),
		errors.As(err, &schema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError translates an error into a response, hiding
// internals behind a generic message for 5xx.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Printf("web: %v", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
