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

const agentColumns = "id, user_id, name, description, system_prompt, model, is_default, created_at, updated_at"

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Description,
		&a.SystemPrompt,
		&a.Model,
		&a.IsDefault,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning agent: %w", err)
	}
	return &a, nil
}

const createAgent = `-- name: CreateAgent :one
INSERT INTO agents (id, user_id, name, description, system_prompt, model, is_default)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, name, description, system_prompt, model, is_default, created_at, updated_at;
`

func (s *PostgresStore) CreateAgent(ctx context.Context, arg store.CreateAgentParams) (*models.Agent, error) {
	row := s.db.QueryRow(ctx, createAgent,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Description, // pgx handles *string to NULL automatically
		arg.SystemPrompt,
		arg.Model,
		arg.IsDefault,
	)
	return scanAgent(row)
}

func (s *PostgresStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1;`
	return scanAgent(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetDefaultAgent(ctx context.Context) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE is_default LIMIT 1;`
	return scanAgent(s.db.QueryRow(ctx, query))
}

const listAgentsForUser = `-- name: ListAgentsForUser :many
SELECT id, user_id, name, description, system_prompt, model, is_default, created_at, updated_at
FROM agents
WHERE user_id = $1 OR is_default
ORDER BY is_default DESC, created_at DESC;
`

// ListAgentsForUser returns the user's own agents plus the installation
// default agent.
func (s *PostgresStore) ListAgentsForUser(ctx context.Context, userID uuid.UUID) ([]models.Agent, error) {
	rows, err := s.db.Query(ctx, listAgentsForUser, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying agents: %w", err)
	}
	defer rows.Close()

	var items []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent rows: %w", err)
	}
	return items, nil
}

// UpdateAgent builds the query dynamically based on which fields are provided.
func (s *PostgresStore) UpdateAgent(ctx context.Context, arg store.UpdateAgentParams) (*models.Agent, error) {
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
	if arg.SystemPrompt != nil {
		setClauses = append(setClauses, fmt.Sprintf("system_prompt = $%d", argID))
		args = append(args, *arg.SystemPrompt)
		argID++
	}
	if arg.Model != nil {
		setClauses = append(setClauses, fmt.Sprintf("model = $%d", argID))
		args = append(args, *arg.Model)
		argID++
	}

	if len(setClauses) == 0 {
		return s.GetAgentByID(ctx, arg.ID)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	args = append(args, arg.ID)

	query := fmt.Sprintf(`UPDATE agents SET %s WHERE id = $%d RETURNING %s;`,
		strings.Join(setClauses, ", "), argID, agentColumns)

	return scanAgent(s.db.QueryRow(ctx, query, args...))
}

const deleteAgent = `-- name: DeleteAgent :exec
DELETE FROM agents
WHERE id = $1 AND NOT is_default;
`

// DeleteAgent removes an agent. The default agent is protected at the SQL
// level as well as in the service layer.
func (s *PostgresStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteAgent, id)
	if err != nil {
		return fmt.Errorf("error executing delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
