package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

// AgentService manages agent configurations and the agent<->tool mapping.
type AgentService struct {
	store   store.Store
	runtime AgentRuntime
	logger  *slog.Logger
}

func NewAgentService(s store.Store, runtime AgentRuntime, logger *slog.Logger) *AgentService {
	return &AgentService{
		store:   s,
		runtime: runtime,
		logger:  logger.With("service", "agents"),
	}
}

func mapAgentToResponse(ag *models.Agent) *models.AgentResponse {
	return &models.AgentResponse{
		ID:           ag.ID,
		Name:         ag.Name,
		Description:  ag.Description,
		SystemPrompt: ag.SystemPrompt,
		Model:        ag.Model,
		IsDefault:    ag.IsDefault,
		CreatedAt:    ag.CreatedAt,
		UpdatedAt:    ag.UpdatedAt,
	}
}

const (
	defaultAgentName = "Tooler"
	systemUserEmail  = "system@agentchat.local"
)

const defaultAgentPrompt = `# Tooler Agent

You are Tooler, a specialized agent focused on building custom API clients based on user requirements.

## Identity

- You specialize in researching APIs, understanding their capabilities, and creating structured tool clients that can be used by other AI systems.
- Your expertise is in creating Python-based API clients that follow best practices for async operations, error handling, and type safety.

## Instructions

### Research Phase
1. When presented with a user request for an API client, first focus on understanding their needs and the API's capabilities.
2. Search for the API documentation and key endpoints that would satisfy the user's requirements.
3. Collect information about authentication, rate limits, and data formats.

### Design Phase
1. Create a well-structured API client using modern Python practices.
2. Use async patterns with httpx for network operations.
3. Use Pydantic models for request and response validation.
4. Implement proper error handling and retries where appropriate.
5. Add clear documentation and type hints.

### Implementation Phase
1. Produce clean, well-tested code that handles edge cases.
2. Ensure the interface is intuitive and follows the principle of least surprise.
3. Create an MCP Server wrapper to make the client usable by other agents.

### Testing Phase
1. Verify your implementation with sample requests.
2. Create appropriate test agents.
`

// EnsureDefaultAgent seeds the installation default agent on first startup.
// The default agent is owned by an internal system account that cannot log
// in. Idempotent; the partial unique index on is_default backstops races.
func (s *AgentService) EnsureDefaultAgent(ctx context.Context) error {
	_, err := s.store.GetDefaultAgent(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up default agent: %w", err)
	}

	owner, err := s.systemUser(ctx)
	if err != nil {
		return err
	}

	description := "The default Tooler agent for building custom API clients"
	ag, err := s.store.CreateAgent(ctx, store.CreateAgentParams{
		ID:           uuid.New(),
		UserID:       owner.ID,
		Name:         defaultAgentName,
		Description:  &description,
		SystemPrompt: defaultAgentPrompt,
		IsDefault:    true,
	})
	if err != nil {
		return fmt.Errorf("creating default agent: %w", err)
	}

	s.logger.Info("default agent created", "agent_id", ag.ID, "name", ag.Name)
	return nil
}

// systemUser returns the internal account owning seeded resources, creating
// it on first use. The stored hash can never match a password.
func (s *AgentService) systemUser(ctx context.Context) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, systemUserEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up system user: %w", err)
	}

	user = &models.User{
		ID:             uuid.New(),
		Email:          systemUserEmail,
		HashedPassword: "!",
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating system user: %w", err)
	}
	return user, nil
}

// getOwnedAgent loads an agent readable by the user: their own, or the
// installation default.
func (s *AgentService) getOwnedAgent(ctx context.Context, userID, agentID uuid.UUID) (*models.Agent, error) {
	ag, err := s.store.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if ag.UserID != userID && !ag.IsDefault {
		return nil, ErrNotAuthorized
	}
	return ag, nil
}

func (s *AgentService) CreateAgent(ctx context.Context, userID uuid.UUID, req models.CreateAgentRequest) (*models.AgentResponse, error) {
	if req.Name == "" || req.SystemPrompt == "" {
		return nil, fmt.Errorf("%w: name and system_prompt are required", ErrValidation)
	}

	ag, err := s.store.CreateAgent(ctx, store.CreateAgentParams{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	s.logger.Info("agent created", "agent_id", ag.ID, "user_id", userID)
	return mapAgentToResponse(ag), nil
}

func (s *AgentService) GetAgent(ctx context.Context, userID, agentID uuid.UUID) (*models.AgentResponse, error) {
	ag, err := s.getOwnedAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	return mapAgentToResponse(ag), nil
}

// ListAgents returns the user's agents plus the installation default.
func (s *AgentService) ListAgents(ctx context.Context, userID uuid.UUID) (*models.ListAgentsResponse, error) {
	agents, err := s.store.ListAgentsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	resp := make([]models.AgentResponse, 0, len(agents))
	for i := range agents {
		resp = append(resp, *mapAgentToResponse(&agents[i]))
	}
	return &models.ListAgentsResponse{Agents: resp}, nil
}

// UpdateAgent applies a partial update. The default agent only accepts a
// system prompt change; its name and description are fixed.
func (s *AgentService) UpdateAgent(ctx context.Context, userID, agentID uuid.UUID, req models.UpdateAgentRequest) (*models.AgentResponse, error) {
	ag, err := s.getOwnedAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}

	if ag.IsDefault && (req.Name != nil || req.Description != nil || req.Model != nil) {
		return nil, fmt.Errorf("%w: only the system prompt of the default agent may change", ErrValidation)
	}
	if req.Name == nil && req.Description == nil && req.SystemPrompt == nil && req.Model == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	updated, err := s.store.UpdateAgent(ctx, store.UpdateAgentParams{
		ID:           agentID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}

	// The cached runner still holds the old configuration.
	s.runtime.Invalidate(agentID)

	s.logger.Info("agent updated", "agent_id", agentID, "user_id", userID)
	return mapAgentToResponse(updated), nil
}

func (s *AgentService) DeleteAgent(ctx context.Context, userID, agentID uuid.UUID) error {
	ag, err := s.getOwnedAgent(ctx, userID, agentID)
	if err != nil {
		return err
	}
	if ag.IsDefault {
		return fmt.Errorf("%w: the default agent cannot be deleted", ErrValidation)
	}

	if err := s.store.DeleteAgent(ctx, agentID); err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	s.runtime.Invalidate(agentID)
	s.logger.Info("agent deleted", "agent_id", agentID, "user_id", userID)
	return nil
}

// AttachMCPServer maps a tool server onto an agent. Both sides must be
// reachable by the caller; re-attaching updates the active flag.
func (s *AgentService) AttachMCPServer(ctx context.Context, userID, agentID uuid.UUID, req models.AttachMCPServerRequest) error {
	ag, err := s.getOwnedAgent(ctx, userID, agentID)
	if err != nil {
		return err
	}
	if req.MCPServerID == uuid.Nil {
		return fmt.Errorf("%w: mcp_server_id is required", ErrValidation)
	}
	if _, err := s.store.GetMCPServerByID(ctx, req.MCPServerID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to look up mcp server: %w", err)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	if err := s.store.AttachMCPServer(ctx, ag.ID, req.MCPServerID, isActive); err != nil {
		return fmt.Errorf("failed to attach mcp server: %w", err)
	}

	s.runtime.Invalidate(agentID)
	s.logger.Info("mcp server attached", "agent_id", agentID, "mcp_server_id", req.MCPServerID, "is_active", isActive)
	return nil
}

func (s *AgentService) DetachMCPServer(ctx context.Context, userID, agentID, mcpServerID uuid.UUID) error {
	if _, err := s.getOwnedAgent(ctx, userID, agentID); err != nil {
		return err
	}

	if err := s.store.DetachMCPServer(ctx, agentID, mcpServerID); err != nil {
		return fmt.Errorf("failed to detach mcp server: %w", err)
	}

	s.runtime.Invalidate(agentID)
	s.logger.Info("mcp server detached", "agent_id", agentID, "mcp_server_id", mcpServerID)
	return nil
}

// ResetCache invalidates cached runners: one agent when id is given,
// everything otherwise.
func (s *AgentService) ResetCache(agentID *uuid.UUID) {
	if agentID != nil {
		s.runtime.Invalidate(*agentID)
		s.logger.Info("agent cache invalidated", "agent_id", *agentID)
		return
	}
	s.runtime.InvalidateAll()
	s.logger.Info("agent cache cleared")
}
