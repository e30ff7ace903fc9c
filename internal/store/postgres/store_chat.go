package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

const chatSessionColumns = "id, user_id, agent_id, title, created_at, updated_at"

func scanChatSession(row pgx.Row) (*models.ChatSession, error) {
	var cs models.ChatSession
	err := row.Scan(
		&cs.ID,
		&cs.UserID,
		&cs.AgentID,
		&cs.Title,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning chat session: %w", err)
	}
	return &cs, nil
}

const messageColumns = "id, chat_session_id, role, content, seq, created_at"

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.ChatSessionID,
		&m.Role,
		&m.Content,
		&m.Seq,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning message: %w", err)
	}
	return &m, nil
}

// --- Chat Session Methods ---

const createChatSession = `-- name: CreateChatSession :one
INSERT INTO chat_sessions (id, user_id, agent_id, title)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, agent_id, title, created_at, updated_at;
`

func (s *PostgresStore) CreateChatSession(ctx context.Context, arg store.CreateChatSessionParams) (*models.ChatSession, error) {
	row := s.db.QueryRow(ctx, createChatSession, arg.ID, arg.UserID, arg.AgentID, arg.Title)
	return scanChatSession(row)
}

func (s *PostgresStore) GetChatSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	query := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE id = $1;`
	return scanChatSession(s.db.QueryRow(ctx, query, id))
}

const listChatSessionsByUser = `-- name: ListChatSessionsByUser :many
SELECT id, user_id, agent_id, title, created_at, updated_at
FROM chat_sessions
WHERE user_id = $1 AND ($2::uuid IS NULL OR agent_id = $2)
ORDER BY updated_at DESC;
`

// ListChatSessionsByUser returns the user's sessions, optionally filtered by
// agent, most recently active first.
func (s *PostgresStore) ListChatSessionsByUser(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]models.ChatSession, error) {
	rows, err := s.db.Query(ctx, listChatSessionsByUser, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("error querying chat sessions: %w", err)
	}
	defer rows.Close()

	var items []models.ChatSession
	for rows.Next() {
		cs, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *cs)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat session rows: %w", err)
	}
	return items, nil
}

const updateChatSessionTitle = `-- name: UpdateChatSessionTitle :one
UPDATE chat_sessions
SET title = $1, updated_at = NOW()
WHERE id = $2
RETURNING id, user_id, agent_id, title, created_at, updated_at;
`

func (s *PostgresStore) UpdateChatSessionTitle(ctx context.Context, id uuid.UUID, title string) (*models.ChatSession, error) {
	return scanChatSession(s.db.QueryRow(ctx, updateChatSessionTitle, title, id))
}

const deleteChatSession = `-- name: DeleteChatSession :exec
DELETE FROM chat_sessions
WHERE id = $1;
`

// DeleteChatSession removes a session; messages cascade at the SQL level.
func (s *PostgresStore) DeleteChatSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteChatSession, id)
	if err != nil {
		return fmt.Errorf("error executing delete chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Message Methods ---

const appendMessage = `-- name: AppendMessage :one
INSERT INTO messages (id, chat_session_id, role, content)
VALUES ($1, $2, $3, $4)
RETURNING id, chat_session_id, role, content, seq, created_at;
`

const touchChatSession = `-- name: TouchChatSession :exec
UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1;
`

// AppendMessage inserts a message and touches the session's updated_at in a
// single transaction, so a visible message always implies a bumped session.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	msg, err := scanMessage(tx.QueryRow(ctx, appendMessage, uuid.New(), sessionID, role, content))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, touchChatSession, sessionID); err != nil {
		return nil, fmt.Errorf("error touching chat session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing append transaction: %w", err)
	}
	return msg, nil
}

const updateMessageContent = `-- name: UpdateMessageContent :one
UPDATE messages
SET content = $1
WHERE id = $2
RETURNING id, chat_session_id, role, content, seq, created_at;
`

// UpdateMessageContent overwrites a message's content. Used only for the
// in-progress model message. Returns store.ErrNotFound if the row is gone
// (e.g. the session was deleted concurrently).
func (s *PostgresStore) UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error) {
	return scanMessage(s.db.QueryRow(ctx, updateMessageContent, content, messageID))
}

const listMessages = `-- name: ListMessages :many
SELECT id, chat_session_id, role, content, seq, created_at
FROM messages
WHERE chat_session_id = $1
ORDER BY created_at, seq;
`

// ListMessages returns all messages for a session ordered by timestamp,
// insertion order breaking ties.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, listMessages, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var items []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return items, nil
}
