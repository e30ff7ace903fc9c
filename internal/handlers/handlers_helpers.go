package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agentchat-backend/internal/agent"
	"agentchat-backend/internal/auth"
	"agentchat-backend/internal/services"
	"agentchat-backend/internal/store"
	"agentchat-backend/pkg/httputil"
)

// userIDFromRequest pulls the authenticated user id from the request
// context, writing a 401 itself when it is missing.
func userIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// uuidParam parses a UUID URL parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// respondServiceError maps service errors to HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	var toolErr *agent.ToolStartError
	var execErr *agent.ExecutionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, services.ErrNotAuthorized):
		httputil.RespondError(w, http.StatusForbidden, "Not authorized")
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &toolErr), errors.As(err, &execErr):
		httputil.RespondError(w, http.StatusBadGateway, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
