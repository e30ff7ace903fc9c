package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

const mcpServerColumns = "id, user_id, name, description, code, created_at, updated_at"

func scanMCPServer(row pgx.Row) (*models.MCPServer, error) {
	var m models.MCPServer
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Name,
		&m.Description,
		&m.Code,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning mcp server: %w", err)
	}
	return &m, nil
}

const createMCPServer = `-- name: CreateMCPServer :one
INSERT INTO mcp_servers (id, user_id, name, description, code)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, name, description, code, created_at, updated_at;
`

func (s *PostgresStore) CreateMCPServer(ctx context.Context, arg store.CreateMCPServerParams) (*models.MCPServer, error) {
	row := s.db.QueryRow(ctx, createMCPServer,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Description,
		arg.Code,
	)
	return scanMCPServer(row)
}

func (s *PostgresStore) GetMCPServerByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.MCPServer, error) {
	query := `SELECT ` + mcpServerColumns + ` FROM mcp_servers WHERE id = $1 AND user_id = $2;`
	return scanMCPServer(s.db.QueryRow(ctx, query, id, userID))
}

const listMCPServersByUser = `-- name: ListMCPServersByUser :many
SELECT id, user_id, name, description, code, created_at, updated_at
FROM mcp_servers
WHERE user_id = $1
ORDER BY created_at DESC;
`

func (s *PostgresStore) ListMCPServersByUser(ctx context.Context, userID uuid.UUID) ([]models.MCPServer, error) {
	rows, err := s.db.Query(ctx, listMCPServersByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying mcp servers: %w", err)
	}
	defer rows.Close()

	var items []models.MCPServer
	for rows.Next() {
		m, err := scanMCPServer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mcp server rows: %w", err)
	}
	return items, nil
}

// UpdateMCPServer builds the query dynamically based on which fields are provided.
func (s *PostgresStore) UpdateMCPServer(ctx context.Context, arg store.UpdateMCPServerParams) (*models.MCPServer, error) {
	setClauses := []string{}
	args := []interface{}{}
	argID := 1

	if arg.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argID))
		args = append(args, *arg.Name)
		argID++
	}
	if arg.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argID))
		args = append(args, *arg.Description)
		argID++
	}
	if arg.Code != nil {
		setClauses = append(setClauses, fmt.Sprintf("code = $%d", argID))
		args = append(args, *arg.Code)
		argID++
	}

	if len(setClauses) == 0 {
		return s.GetMCPServerByID(ctx, arg.ID, arg.UserID)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	args = append(args, arg.ID)
	args = append(args, arg.UserID)

	query := fmt.Sprintf(`UPDATE mcp_servers SET %s WHERE id = $%d AND user_id = $%d RETURNING %s;`,
		strings.Join(setClauses, ", "), argID, argID+1, mcpServerColumns)

	return scanMCPServer(s.db.QueryRow(ctx, query, args...))
}

const deleteMCPServer = `-- name: DeleteMCPServer :exec
DELETE FROM mcp_servers
WHERE id = $1 AND user_id = $2;
`

func (s *PostgresStore) DeleteMCPServer(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteMCPServer, id, userID)
	if err != nil {
		return fmt.Errorf("error executing delete mcp server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Agent <-> MCP Server Mappings ---

const attachMCPServer = `-- name: AttachMCPServer :exec
INSERT INTO agent_mcp_servers (agent_id, mcp_server_id, is_active)
VALUES ($1, $2, $3)
ON CONFLICT (agent_id, mcp_server_id) DO UPDATE SET is_active = EXCLUDED.is_active;
`

func (s *PostgresStore) AttachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID, isActive bool) error {
	_, err := s.db.Exec(ctx, attachMCPServer, agentID, mcpServerID, isActive)
	if err != nil {
		return fmt.Errorf("failed to attach mcp server: %w", err)
	}
	return nil
}

const detachMCPServer = `-- name: DetachMCPServer :exec
DELETE FROM agent_mcp_servers
WHERE agent_id = $1 AND mcp_server_id = $2;
`

func (s *PostgresStore) DetachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, detachMCPServer, agentID, mcpServerID)
	if err != nil {
		return fmt.Errorf("failed to detach mcp server: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const listActiveAgentMCPServers = `-- name: ListActiveAgentMCPServers :many
SELECT m.id, m.user_id, m.name, m.description, m.code, m.created_at, m.updated_at
FROM mcp_servers m
JOIN agent_mcp_servers map ON m.id = map.mcp_server_id
WHERE map.agent_id = $1 AND map.is_active
ORDER BY m.created_at;
`

// ListActiveAgentMCPServers returns the active tool servers attached to an
// agent, in stable attachment order.
func (s *PostgresStore) ListActiveAgentMCPServers(ctx context.Context, agentID uuid.UUID) ([]models.MCPServer, error) {
	rows, err := s.db.Query(ctx, listActiveAgentMCPServers, agentID)
	if err != nil {
		return nil, fmt.Errorf("error querying agent mcp servers: %w", err)
	}
	defer rows.Close()

	var items []models.MCPServer
	for rows.Next() {
		m, err := scanMCPServer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent mcp server rows: %w", err)
	}
	return items, nil
}
