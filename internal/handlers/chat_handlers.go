package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"agentchat-backend/internal/models"
	"agentchat-backend/pkg/httputil"
)

// ChatService defines the interface expected from the chat service.
// This promotes loose coupling and testability.
type ChatService interface {
	CreateSession(ctx context.Context, userID uuid.UUID, req models.CreateChatSessionRequest) (*models.ChatSessionResponse, error)
	ListSessions(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) (*models.ListChatSessionsResponse, error)
	GetSessionDetail(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSessionDetailResponse, error)
	UpdateSessionTitle(ctx context.Context, userID, sessionID uuid.UUID, title string) (*models.ChatSessionResponse, error)
	DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error
	SendMessage(ctx context.Context, userID, sessionID uuid.UUID, content string) (*models.MessageResponse, error)
	StreamMessage(ctx context.Context, userID, sessionID uuid.UUID, content string) <-chan models.StreamFrame
}

// ChatHandlers handles HTTP requests for chat sessions and messages,
// including the NDJSON streaming endpoint.
type ChatHandlers struct {
	chatService ChatService
	logger      *slog.Logger
}

func NewChatHandlers(chatService ChatService, logger *slog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chatService: chatService,
		logger:      logger.With("handler", "chat"),
	}
}

// HandleCreateSession handles POST /v1/chat/sessions.
func (h *ChatHandlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req models.CreateChatSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.chatService.CreateSession(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListSessions handles GET /v1/chat/sessions. An optional agent_id
// query parameter filters by agent.
func (h *ChatHandlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var agentID *uuid.UUID
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
			return
		}
		agentID = &id
	}

	resp, err := h.chatService.ListSessions(r.Context(), userID, agentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetSession handles GET /v1/chat/sessions/{sessionID}. The response
// includes the full message log.
func (h *ChatHandlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	resp, err := h.chatService.GetSessionDetail(r.Context(), userID, sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleUpdateSession handles PATCH /v1/chat/sessions/{sessionID}.
func (h *ChatHandlers) HandleUpdateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.UpdateChatSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == nil {
		httputil.RespondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	resp, err := h.chatService.UpdateSessionTitle(r.Context(), userID, sessionID, *req.Title)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteSession handles DELETE /v1/chat/sessions/{sessionID}.
func (h *ChatHandlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	if err := h.chatService.DeleteSession(r.Context(), userID, sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendMessage handles POST /v1/chat/sessions/{sessionID}/messages.
// Synchronous: the response is the final model message.
func (h *ChatHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.chatService.SendMessage(r.Context(), userID, sessionID, req.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleStreamMessage handles POST /v1/chat/sessions/{sessionID}/messages/stream.
// The response is newline-delimited JSON, flushed frame by frame. The first
// frame echoes the user message; a frame with error=true is terminal.
func (h *ChatHandlers) HandleStreamMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for frame := range h.chatService.StreamMessage(r.Context(), userID, sessionID, req.Content) {
		if err := enc.Encode(frame); err != nil {
			h.logger.Warn("writing stream frame", "session_id", sessionID, "error", err)
			return
		}
		flusher.Flush()
	}
}
