package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/services"
	"agentchat-backend/pkg/httputil"
)

// AgentHandlers handles HTTP requests for agent configurations.
type AgentHandlers struct {
	agentService *services.AgentService
}

func NewAgentHandlers(agentService *services.AgentService) *AgentHandlers {
	return &AgentHandlers{agentService: agentService}
}

// HandleCreateAgent handles POST /v1/agents.
func (h *AgentHandlers) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req models.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.agentService.CreateAgent(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListAgents handles GET /v1/agents.
func (h *AgentHandlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.agentService.ListAgents(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetAgent handles GET /v1/agents/{agentID}.
func (h *AgentHandlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	agentID, err := uuidParam(r, "agentID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	resp, err := h.agentService.GetAgent(r.Context(), userID, agentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleUpdateAgent handles PATCH /v1/agents/{agentID}.
func (h *AgentHandlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	agentID, err := uuidParam(r, "agentID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	var req models.UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.agentService.UpdateAgent(r.Context(), userID, agentID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteAgent handles DELETE /v1/agents/{agentID}.
func (h *AgentHandlers) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	agentID, err := uuidParam(r, "agentID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	if err := h.agentService.DeleteAgent(r.Context(), userID, agentID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAttachMCPServer handles POST /v1/agents/{agentID}/mcp-servers.
func (h *AgentHandlers) HandleAttachMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	agentID, err := uuidParam(r, "agentID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	var req models.AttachMCPServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.agentService.AttachMCPServer(r.Context(), userID, agentID, req); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDetachMCPServer handles DELETE /v1/agents/{agentID}/mcp-servers/{serverID}.
func (h *AgentHandlers) HandleDetachMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	agentID, err := uuidParam(r, "agentID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}
	serverID, err := uuidParam(r, "serverID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	if err := h.agentService.DetachMCPServer(r.Context(), userID, agentID, serverID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetCache handles POST /v1/agents/cache/reset. An optional agent_id
// query parameter limits the reset to one agent.
func (h *AgentHandlers) HandleResetCache(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromRequest(w, r); !ok {
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

	h.agentService.ResetCache(agentID)
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}
