package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Auth DTOs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Agent DTOs ---

// CreateAgentRequest defines the body for creating an agent.
type CreateAgentRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	SystemPrompt string  `json:"system_prompt"`
	Model        *string `json:"model,omitempty"`
}

// UpdateAgentRequest defines the body for updating an agent. Pointers allow
// partial updates. For the default agent only SystemPrompt is honored.
type UpdateAgentRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	Model        *string `json:"model,omitempty"`
}

// AgentResponse defines the data returned for an agent.
type AgentResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	SystemPrompt string    `json:"system_prompt"`
	Model        *string   `json:"model,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListAgentsResponse wraps a list of agents.
type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
}

// --- MCP server DTOs ---

// CreateMCPServerRequest defines the body for registering a tool server.
type CreateMCPServerRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Code        string  `json:"code"`
}

// UpdateMCPServerRequest defines the body for updating a tool server.
type UpdateMCPServerRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Code        *string `json:"code,omitempty"`
}

// MCPServerResponse defines the data returned for a tool server.
type MCPServerResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListMCPServersResponse wraps a list of tool servers.
type ListMCPServersResponse struct {
	MCPServers []MCPServerResponse `json:"mcp_servers"`
}

// AttachMCPServerRequest defines the body for attaching a tool server to an agent.
type AttachMCPServerRequest struct {
	MCPServerID uuid.UUID `json:"mcp_server_id"`
	IsActive    *bool     `json:"is_active,omitempty"` // default true
}

// --- Chat DTOs ---

// CreateChatSessionRequest defines the body for creating a chat session.
type CreateChatSessionRequest struct {
	AgentID uuid.UUID `json:"agent_id"`
	Title   string    `json:"title"`
}

// UpdateChatSessionRequest defines the body for renaming a chat session.
type UpdateChatSessionRequest struct {
	Title *string `json:"title,omitempty"`
}

// ChatSessionResponse defines the data returned for a chat session.
type ChatSessionResponse struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatSessionDetailResponse includes the session's messages.
type ChatSessionDetailResponse struct {
	ChatSessionResponse
	Messages []MessageResponse `json:"messages"`
}

// ListChatSessionsResponse wraps a list of chat sessions.
type ListChatSessionsResponse struct {
	Sessions []ChatSessionResponse `json:"sessions"`
}

// CreateMessageRequest defines the body for posting a message to a session.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse defines the data returned for a single message.
type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamFrame is one newline-delimited JSON frame of the streaming endpoint.
//
// The first frame always echoes the user's message. Subsequent frames carry
// cumulative model content under a stable model message id. A frame with
// Error set is terminal: no further frames follow it.
type StreamFrame struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Error     bool      `json:"error,omitempty"`
}
