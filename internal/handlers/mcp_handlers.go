package handlers

import (
	"encoding/json"
	"net/http"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/services"
	"agentchat-backend/pkg/httputil"
)

// MCPHandlers handles HTTP requests for tool server definitions.
type MCPHandlers struct {
	mcpService *services.MCPService
}

func NewMCPHandlers(mcpService *services.MCPService) *MCPHandlers {
	return &MCPHandlers{mcpService: mcpService}
}

// HandleCreateMCPServer handles POST /v1/mcp-servers.
func (h *MCPHandlers) HandleCreateMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req models.CreateMCPServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.mcpService.CreateMCPServer(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListMCPServers handles GET /v1/mcp-servers.
func (h *MCPHandlers) HandleListMCPServers(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.mcpService.ListMCPServers(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetMCPServer handles GET /v1/mcp-servers/{serverID}.
func (h *MCPHandlers) HandleGetMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	serverID, err := uuidParam(r, "serverID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	resp, err := h.mcpService.GetMCPServer(r.Context(), userID, serverID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleUpdateMCPServer handles PATCH /v1/mcp-servers/{serverID}.
func (h *MCPHandlers) HandleUpdateMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	serverID, err := uuidParam(r, "serverID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	var req models.UpdateMCPServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.mcpService.UpdateMCPServer(r.Context(), userID, serverID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteMCPServer handles DELETE /v1/mcp-servers/{serverID}.
func (h *MCPHandlers) HandleDeleteMCPServer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	serverID, err := uuidParam(r, "serverID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	if err := h.mcpService.DeleteMCPServer(r.Context(), userID, serverID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
