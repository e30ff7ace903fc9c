package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who (or what) produced a message.
type Role string

const (
	RoleUser       Role = "user"
	RoleModel      Role = "model"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// Valid reports whether r is one of the persisted message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleToolCall, RoleToolResult:
		return true
	}
	return false
}

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Agent represents an agent configuration: a system prompt, a model
// reference and a set of attached MCP tool servers.
//
// Exactly one agent per installation is marked default. The default agent
// is readable by every user, cannot be deleted, and only its prompt may be
// changed.
type Agent struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Name         string    `db:"name"`
	Description  *string   `db:"description"`
	SystemPrompt string    `db:"system_prompt"`
	Model        *string   `db:"model"` // nil -> installation default
	IsDefault    bool      `db:"is_default"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// MCPServer represents a user-registered tool server: a script launched as
// a subprocess speaking the Model Context Protocol over stdio.
type MCPServer struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	Code        string    `db:"code"` // script source, written to disk at run start
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// AgentMCPServer is the association between an agent and an MCP server.
type AgentMCPServer struct {
	AgentID     uuid.UUID `db:"agent_id"`
	MCPServerID uuid.UUID `db:"mcp_server_id"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

// ChatSession represents one conversation between a user and an agent.
type ChatSession struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	AgentID   uuid.UUID `db:"agent_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is one entry in a conversation's ordered log.
//
// CreatedAt is the ordering key within a session; Seq breaks ties in
// insertion order. A user message is immutable once written. The in-progress
// model message is the only row ever updated: its content is rewritten as
// streaming chunks arrive, then once more on completion.
type Message struct {
	ID            uuid.UUID `db:"id"`
	ChatSessionID uuid.UUID `db:"chat_session_id"`
	Role          Role      `db:"role"`
	Content       string    `db:"content"`
	Seq           int64     `db:"seq"`
	CreatedAt     time.Time `db:"created_at"`
}
