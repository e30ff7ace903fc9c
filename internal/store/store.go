package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"agentchat-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// CreateAgentParams contains parameters for creating an agent.
type CreateAgentParams struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Name         string
	Description  *string
	SystemPrompt string
	Model        *string
	IsDefault    bool
}

// UpdateAgentParams contains parameters for updating an agent.
// Pointers allow partial updates.
type UpdateAgentParams struct {
	ID           uuid.UUID
	Name         *string
	Description  *string
	SystemPrompt *string
	Model        *string
}

// CreateMCPServerParams contains parameters for registering a tool server.
type CreateMCPServerParams struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description *string
	Code        string
}

// UpdateMCPServerParams contains parameters for updating a tool server.
type UpdateMCPServerParams struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        *string
	Description *string
	Code        *string
}

// CreateChatSessionParams contains parameters for creating a chat session.
type CreateChatSessionParams struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	AgentID uuid.UUID
	Title   string
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Agent operations. Reads are not scoped by owner: the default agent is
	// visible to every user, so ownership checks live in the service layer.
	CreateAgent(ctx context.Context, arg CreateAgentParams) (*models.Agent, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetDefaultAgent(ctx context.Context) (*models.Agent, error)
	ListAgentsForUser(ctx context.Context, userID uuid.UUID) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, arg UpdateAgentParams) (*models.Agent, error)
	DeleteAgent(ctx context.Context, id uuid.UUID) error

	// MCP server operations
	CreateMCPServer(ctx context.Context, arg CreateMCPServerParams) (*models.MCPServer, error)
	GetMCPServerByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.MCPServer, error)
	ListMCPServersByUser(ctx context.Context, userID uuid.UUID) ([]models.MCPServer, error)
	UpdateMCPServer(ctx context.Context, arg UpdateMCPServerParams) (*models.MCPServer, error)
	DeleteMCPServer(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// Agent <-> MCP server association
	AttachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID, isActive bool) error
	DetachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID) error
	ListActiveAgentMCPServers(ctx context.Context, agentID uuid.UUID) ([]models.MCPServer, error)

	// Chat session operations
	CreateChatSession(ctx context.Context, arg CreateChatSessionParams) (*models.ChatSession, error)
	GetChatSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListChatSessionsByUser(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]models.ChatSession, error)
	UpdateChatSessionTitle(ctx context.Context, id uuid.UUID, title string) (*models.ChatSession, error)
	DeleteChatSession(ctx context.Context, id uuid.UUID) error

	// Message operations. AppendMessage touches the session's updated_at in
	// the same transaction. UpdateMessageContent is used only for the
	// in-progress model message.
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
}
