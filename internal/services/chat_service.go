package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentchat-backend/internal/agent"
	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

const defaultSessionTitle = "New Chat"

// ChatConfig tunes the streaming orchestrator.
type ChatConfig struct {
	// RunTimeout bounds a single agent run. Zero means no deadline.
	RunTimeout time.Duration

	// StreamDebounce is the minimum interval between cumulative content
	// frames. Persistence is never debounced, only emission.
	StreamDebounce time.Duration
}

// ChatService owns chat sessions and the streaming orchestrator that drives
// agent runs against them.
type ChatService struct {
	store   store.Store
	runtime AgentRuntime
	cfg     ChatConfig
	logger  *slog.Logger
}

func NewChatService(s store.Store, runtime AgentRuntime, cfg ChatConfig, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:   s,
		runtime: runtime,
		cfg:     cfg,
		logger:  logger.With("service", "chat"),
	}
}

func mapSessionToResponse(cs *models.ChatSession) *models.ChatSessionResponse {
	return &models.ChatSessionResponse{
		ID:        cs.ID,
		AgentID:   cs.AgentID,
		Title:     cs.Title,
		CreatedAt: cs.CreatedAt,
		UpdatedAt: cs.UpdatedAt,
	}
}

func mapMessageToResponse(m *models.Message) *models.MessageResponse {
	return &models.MessageResponse{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}

// --- Session CRUD ---

// getOwnedSession loads a session and enforces ownership.
func (s *ChatService) getOwnedSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSession, error) {
	cs, err := s.store.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cs.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return cs, nil
}

// readableAgent loads an agent the user may converse with: their own, or
// the installation default.
func (s *ChatService) readableAgent(ctx context.Context, userID, agentID uuid.UUID) (*models.Agent, error) {
	ag, err := s.store.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if ag.UserID != userID && !ag.IsDefault {
		return nil, ErrNotAuthorized
	}
	return ag, nil
}

func (s *ChatService) CreateSession(ctx context.Context, userID uuid.UUID, req models.CreateChatSessionRequest) (*models.ChatSessionResponse, error) {
	if req.AgentID == uuid.Nil {
		return nil, fmt.Errorf("%w: agent_id is required", ErrValidation)
	}
	if _, err := s.readableAgent(ctx, userID, req.AgentID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultSessionTitle
	}

	cs, err := s.store.CreateChatSession(ctx, store.CreateChatSessionParams{
		ID:      uuid.New(),
		UserID:  userID,
		AgentID: req.AgentID,
		Title:   title,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.Info("chat session created", "session_id", cs.ID, "agent_id", cs.AgentID, "user_id", userID)
	return mapSessionToResponse(cs), nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) (*models.ListChatSessionsResponse, error) {
	sessions, err := s.store.ListChatSessionsByUser(ctx, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	resp := make([]models.ChatSessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, *mapSessionToResponse(&sessions[i]))
	}
	return &models.ListChatSessionsResponse{Sessions: resp}, nil
}

// GetSessionDetail returns a session with its full ordered message log.
func (s *ChatService) GetSessionDetail(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSessionDetailResponse, error) {
	cs, err := s.getOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	resp := &models.ChatSessionDetailResponse{
		ChatSessionResponse: *mapSessionToResponse(cs),
		Messages:            make([]models.MessageResponse, 0, len(messages)),
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, *mapMessageToResponse(&messages[i]))
	}
	return resp, nil
}

func (s *ChatService) UpdateSessionTitle(ctx context.Context, userID, sessionID uuid.UUID, title string) (*models.ChatSessionResponse, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	cs, err := s.store.UpdateChatSessionTitle(ctx, sessionID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to update chat session: %w", err)
	}
	return mapSessionToResponse(cs), nil
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if _, err := s.getOwnedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteChatSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	s.logger.Info("chat session deleted", "session_id", sessionID, "user_id", userID)
	return nil
}

// --- Messaging ---

// resolveAgent loads the session's agent and its active tool definitions.
func (s *ChatService) resolveAgent(ctx context.Context, cs *models.ChatSession) (*models.Agent, []models.MCPServer, error) {
	ag, err := s.store.GetAgentByID(ctx, cs.AgentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load agent: %w", err)
	}
	tools, err := s.store.ListActiveAgentMCPServers(ctx, ag.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load agent tools: %w", err)
	}
	return ag, tools, nil
}

// SendMessage is the synchronous variant: it runs the agent to completion
// and returns the final model message. The user message is durable even
// when the run fails.
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID uuid.UUID, content string) (*models.MessageResponse, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrValidation)
	}
	cs, err := s.getOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if _, err := s.store.AppendMessage(ctx, sessionID, models.RoleUser, content); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	ag, tools, err := s.resolveAgent(ctx, cs)
	if err != nil {
		s.persistRunError(ctx, sessionID, err)
		return nil, err
	}

	runner := s.runtime.RunnerFor(ag, tools)
	pool, err := runner.StartTools(ctx)
	if err != nil {
		// Startup failures never leave a model row behind.
		return nil, err
	}
	defer pool.Close()

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	history := agent.HistoryToTurns(prior, s.logger)
	result, err := runner.Run(runCtx, pool, history, content)
	if err != nil {
		s.persistRunError(ctx, sessionID, err)
		return nil, err
	}

	modelMsg, err := s.store.AppendMessage(ctx, sessionID, models.RoleModel, result.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to persist model message: %w", err)
	}

	s.reconcile(ctx, sessionID, result, content)
	return mapMessageToResponse(modelMsg), nil
}

// StreamMessage runs the full streaming state machine and returns the frame
// channel. The channel is closed when the run reaches a terminal state or
// the caller's ctx is cancelled; the tool pool is released on every path.
func (s *ChatService) StreamMessage(ctx context.Context, userID, sessionID uuid.UUID, content string) <-chan models.StreamFrame {
	frames := make(chan models.StreamFrame, 16)
	go func() {
		defer close(frames)
		s.streamRun(ctx, userID, sessionID, content, frames)
	}()
	return frames
}

func (s *ChatService) streamRun(ctx context.Context, userID, sessionID uuid.UUID, content string, frames chan<- models.StreamFrame) {
	send := func(f models.StreamFrame) bool {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	// Terminal frame for failures before anything was persisted.
	fail := func(text string) {
		send(models.StreamFrame{
			ID:        uuid.NewString(),
			Role:      models.RoleModel,
			Content:   text,
			Timestamp: time.Now().UTC(),
			Error:     true,
		})
	}

	// 1. validating
	if strings.TrimSpace(content) == "" {
		fail("message content cannot be empty")
		return
	}
	cs, err := s.store.GetChatSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail("chat session not found")
		} else {
			s.logger.Error("loading chat session", "session_id", sessionID, "error", err)
			fail("failed to load chat session")
		}
		return
	}
	if cs.UserID != userID {
		fail("not authorized for this chat session")
		return
	}

	prior, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		s.logger.Error("loading history", "session_id", sessionID, "error", err)
		fail("failed to load chat history")
		return
	}

	// 2. persisting_user_message: durable before anything else, echoed as
	// the first frame.
	userMsg, err := s.store.AppendMessage(ctx, sessionID, models.RoleUser, content)
	if err != nil {
		s.logger.Error("persisting user message", "session_id", sessionID, "error", err)
		fail("failed to persist message")
		return
	}
	if !send(messageFrame(userMsg, false)) {
		return
	}

	// 3. resolving_agent
	ag, tools, err := s.resolveAgent(ctx, cs)
	if err != nil {
		s.logger.Error("resolving agent", "session_id", sessionID, "error", err)
		s.emitRunError(ctx, sessionID, "agent configuration unavailable", send)
		return
	}

	// 4. starting_tools: a startup failure leaves no model row.
	runner := s.runtime.RunnerFor(ag, tools)
	pool, err := runner.StartTools(ctx)
	if err != nil {
		s.logger.Error("tool startup failed", "session_id", sessionID, "agent_id", ag.ID, "error", err)
		fail(fmt.Sprintf("tool initialization failed: %v", err))
		return
	}
	defer pool.Close()

	// 5. streaming: the model message row exists up front so every frame
	// carries its stable id.
	modelMsg, err := s.store.AppendMessage(ctx, sessionID, models.RoleModel, "")
	if err != nil {
		s.logger.Error("creating model message", "session_id", sessionID, "error", err)
		s.emitRunError(ctx, sessionID, "failed to start model response", send)
		return
	}

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	history := agent.HistoryToTurns(prior, s.logger)
	deltas := runner.RunStream(runCtx, pool, history, content)

	var acc strings.Builder
	var lastEmit time.Time
	for delta := range deltas {
		switch {
		case delta.Err != nil:
			// Partial content is already durable; add a separate error
			// message and exactly one terminal frame.
			s.logger.Error("agent run failed", "session_id", sessionID, "agent_id", ag.ID, "error", delta.Err)
			s.emitRunError(ctx, sessionID, fmt.Sprintf("agent run failed: %v", delta.Err), send)
			return

		case delta.Result != nil:
			// 6. finalizing
			final := delta.Result.Text
			if _, err := s.store.UpdateMessageContent(context.WithoutCancel(ctx), modelMsg.ID, final); err != nil {
				s.logger.Error("persisting final content", "message_id", modelMsg.ID, "error", err)
			}
			send(contentFrame(modelMsg, final))
			s.reconcile(ctx, sessionID, delta.Result, content)
			return

		default:
			acc.WriteString(delta.Text)
			cumulative := acc.String()
			if _, err := s.store.UpdateMessageContent(ctx, modelMsg.ID, cumulative); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// Session deleted under us; stop quietly.
					s.logger.Warn("model message disappeared mid-stream", "message_id", modelMsg.ID)
					return
				}
				s.logger.Error("persisting partial content", "message_id", modelMsg.ID, "error", err)
				s.emitRunError(ctx, sessionID, "failed to persist model output", send)
				return
			}
			if time.Since(lastEmit) >= s.cfg.StreamDebounce {
				if !send(contentFrame(modelMsg, cumulative)) {
					return
				}
				lastEmit = time.Now()
			}
		}
	}
	// Producer closed without a terminal delta: the run ctx was cancelled.
	s.logger.Debug("stream ended without terminal delta", "session_id", sessionID)
}

// runContext applies the configured run deadline.
func (s *ChatService) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// persistRunError records a model-role error message so the failure is
// visible in the durable log. Best effort; survives ctx cancellation.
func (s *ChatService) persistRunError(ctx context.Context, sessionID uuid.UUID, runErr error) *models.Message {
	msg, err := s.store.AppendMessage(context.WithoutCancel(ctx), sessionID, models.RoleModel,
		fmt.Sprintf("The agent failed to respond: %v", runErr))
	if err != nil {
		s.logger.Error("persisting error message", "session_id", sessionID, "error", err)
		return nil
	}
	return msg
}

// emitRunError persists a model-role error message and emits the single
// terminal error frame.
func (s *ChatService) emitRunError(ctx context.Context, sessionID uuid.UUID, text string, send func(models.StreamFrame) bool) {
	msg, err := s.store.AppendMessage(context.WithoutCancel(ctx), sessionID, models.RoleModel, text)
	if err != nil {
		s.logger.Error("persisting error message", "session_id", sessionID, "error", err)
		send(models.StreamFrame{
			ID:        uuid.NewString(),
			Role:      models.RoleModel,
			Content:   text,
			Timestamp: time.Now().UTC(),
			Error:     true,
		})
		return
	}
	send(messageFrame(msg, true))
}

// reconcile persists the run's structured turns, skipping the two already
// represented as rows (the submitted input and the final streamed text).
// Malformed turns are logged and skipped; reconciliation never aborts.
func (s *ChatService) reconcile(ctx context.Context, sessionID uuid.UUID, result *agent.RunResult, input string) {
	ctx = context.WithoutCancel(ctx)
	skippedUser, skippedModel := false, false
	for _, t := range result.Turns {
		switch turn := t.(type) {
		case agent.UserTurn:
			if !skippedUser && turn.Content == input {
				skippedUser = true
				continue
			}
		case agent.ModelTurn:
			if !skippedModel && turn.Content == result.Text {
				skippedModel = true
				continue
			}
		}

		role, content, err := agent.EncodeTurn(t)
		if err != nil {
			s.logger.Warn("skipping malformed turn during reconciliation", "session_id", sessionID, "error", err)
			continue
		}
		if _, err := s.store.AppendMessage(ctx, sessionID, role, content); err != nil {
			s.logger.Error("persisting reconciled turn", "session_id", sessionID, "role", role, "error", err)
		}
	}
}

func messageFrame(m *models.Message, isError bool) models.StreamFrame {
	return models.StreamFrame{
		ID:        m.ID.String(),
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		Error:     isError,
	}
}

// contentFrame is a cumulative model content frame under the stable
// message id.
func contentFrame(m *models.Message, content string) models.StreamFrame {
	return models.StreamFrame{
		ID:        m.ID.String(),
		Role:      m.Role,
		Content:   content,
		Timestamp: m.CreatedAt,
	}
}
