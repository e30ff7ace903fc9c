package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"agentchat-backend/internal/agent"
	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

// fakeStore is an in-memory store.Store used by the service tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	agents   map[uuid.UUID]*models.Agent
	servers  map[uuid.UUID]*models.MCPServer
	links    map[uuid.UUID]map[uuid.UUID]bool
	sessions map[uuid.UUID]*models.ChatSession
	messages map[uuid.UUID][]models.Message
	seq      int64
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*models.User),
		agents:   make(map[uuid.UUID]*models.Agent),
		servers:  make(map[uuid.UUID]*models.MCPServer),
		links:    make(map[uuid.UUID]map[uuid.UUID]bool),
		sessions: make(map[uuid.UUID]*models.ChatSession),
		messages: make(map[uuid.UUID][]models.Message),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateAgent(ctx context.Context, arg store.CreateAgentParams) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag := &models.Agent{
		ID:           arg.ID,
		UserID:       arg.UserID,
		Name:         arg.Name,
		Description:  arg.Description,
		SystemPrompt: arg.SystemPrompt,
		Model:        arg.Model,
		IsDefault:    arg.IsDefault,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.agents[ag.ID] = ag
	return ag, nil
}

func (f *fakeStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ag, ok := f.agents[id]; ok {
		return ag, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetDefaultAgent(ctx context.Context) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ag := range f.agents {
		if ag.IsDefault {
			return ag, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListAgentsForUser(ctx context.Context, userID uuid.UUID) ([]models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Agent
	for _, ag := range f.agents {
		if ag.UserID == userID || ag.IsDefault {
			out = append(out, *ag)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAgent(ctx context.Context, arg store.UpdateAgentParams) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag, ok := f.agents[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if arg.Name != nil {
		ag.Name = *arg.Name
	}
	if arg.Description != nil {
		ag.Description = arg.Description
	}
	if arg.SystemPrompt != nil {
		ag.SystemPrompt = *arg.SystemPrompt
	}
	if arg.Model != nil {
		ag.Model = arg.Model
	}
	ag.UpdatedAt = time.Now()
	return ag, nil
}

func (f *fakeStore) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ag, ok := f.agents[id]
	if !ok || ag.IsDefault {
		return store.ErrNotFound
	}
	delete(f.agents, id)
	return nil
}

func (f *fakeStore) CreateMCPServer(ctx context.Context, arg store.CreateMCPServerParams) (*models.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv := &models.MCPServer{
		ID:          arg.ID,
		UserID:      arg.UserID,
		Name:        arg.Name,
		Description: arg.Description,
		Code:        arg.Code,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.servers[srv.ID] = srv
	return srv, nil
}

func (f *fakeStore) GetMCPServerByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if srv, ok := f.servers[id]; ok && srv.UserID == userID {
		return srv, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListMCPServersByUser(ctx context.Context, userID uuid.UUID) ([]models.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MCPServer
	for _, srv := range f.servers {
		if srv.UserID == userID {
			out = append(out, *srv)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMCPServer(ctx context.Context, arg store.UpdateMCPServerParams) (*models.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.servers[arg.ID]
	if !ok || srv.UserID != arg.UserID {
		return nil, store.ErrNotFound
	}
	if arg.Name != nil {
		srv.Name = *arg.Name
	}
	if arg.Description != nil {
		srv.Description = arg.Description
	}
	if arg.Code != nil {
		srv.Code = *arg.Code
	}
	srv.UpdatedAt = time.Now()
	return srv, nil
}

func (f *fakeStore) DeleteMCPServer(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if srv, ok := f.servers[id]; ok && srv.UserID == userID {
		delete(f.servers, id)
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeStore) AttachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID, isActive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.links[agentID] == nil {
		f.links[agentID] = make(map[uuid.UUID]bool)
	}
	f.links[agentID][mcpServerID] = isActive
	return nil
}

func (f *fakeStore) DetachMCPServer(ctx context.Context, agentID, mcpServerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[agentID][mcpServerID]; !ok {
		return store.ErrNotFound
	}
	delete(f.links[agentID], mcpServerID)
	return nil
}

func (f *fakeStore) ListActiveAgentMCPServers(ctx context.Context, agentID uuid.UUID) ([]models.MCPServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MCPServer
	for serverID, active := range f.links[agentID] {
		if active {
			if srv, ok := f.servers[serverID]; ok {
				out = append(out, *srv)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateChatSession(ctx context.Context, arg store.CreateChatSessionParams) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := &models.ChatSession{
		ID:        arg.ID,
		UserID:    arg.UserID,
		AgentID:   arg.AgentID,
		Title:     arg.Title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.sessions[cs.ID] = cs
	return cs, nil
}

func (f *fakeStore) GetChatSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cs, ok := f.sessions[id]; ok {
		return cs, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListChatSessionsByUser(ctx context.Context, userID uuid.UUID, agentID *uuid.UUID) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSession
	for _, cs := range f.sessions {
		if cs.UserID != userID {
			continue
		}
		if agentID != nil && cs.AgentID != *agentID {
			continue
		}
		out = append(out, *cs)
	}
	return out, nil
}

func (f *fakeStore) UpdateChatSessionTitle(ctx context.Context, id uuid.UUID, title string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cs.Title = title
	cs.UpdatedAt = time.Now()
	return cs, nil
}

func (f *fakeStore) DeleteChatSession(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.sessions, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg := models.Message{
		ID:            uuid.New(),
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		Seq:           f.seq,
		CreatedAt:     time.Now(),
	}
	f.messages[sessionID] = append(f.messages[sessionID], msg)
	if cs, ok := f.sessions[sessionID]; ok {
		cs.UpdatedAt = time.Now()
	}
	return &msg, nil
}

func (f *fakeStore) UpdateMessageContent(ctx context.Context, messageID uuid.UUID, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sessionID := range f.messages {
		for i := range f.messages[sessionID] {
			if f.messages[sessionID][i].ID == messageID {
				f.messages[sessionID][i].Content = content
				m := f.messages[sessionID][i]
				return &m, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Message, len(f.messages[sessionID]))
	copy(out, f.messages[sessionID])
	return out, nil
}

// sessionMessages returns the current rows for assertions.
func (f *fakeStore) sessionMessages(sessionID uuid.UUID) []models.Message {
	out, _ := f.ListMessages(context.Background(), sessionID)
	return out
}

// --- runtime fakes ---

type fakeRunPool struct {
	closed atomic.Int32
}

func (p *fakeRunPool) Tools() []openai.Tool { return nil }
func (p *fakeRunPool) Call(ctx context.Context, name, argsJSON string) (string, error) {
	return "", nil
}
func (p *fakeRunPool) Close() error {
	p.closed.Add(1)
	return nil
}

// fakeRunner plays back a scripted delta sequence.
type fakeRunner struct {
	pool     *fakeRunPool
	startErr error
	deltas   []agent.StreamDelta

	// block keeps the producer alive after the scripted deltas until the
	// run ctx is cancelled, for cancellation tests.
	block bool

	mu         sync.Mutex
	gotHistory []agent.Turn
	gotInput   string
}

func (r *fakeRunner) StartTools(ctx context.Context) (agent.Pool, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.pool, nil
}

func (r *fakeRunner) RunStream(ctx context.Context, pool agent.Pool, history []agent.Turn, input string) <-chan agent.StreamDelta {
	r.mu.Lock()
	r.gotHistory = history
	r.gotInput = input
	r.mu.Unlock()

	ch := make(chan agent.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range r.deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
		if r.block {
			<-ctx.Done()
		}
	}()
	return ch
}

func (r *fakeRunner) Run(ctx context.Context, pool agent.Pool, history []agent.Turn, input string) (*agent.RunResult, error) {
	for delta := range r.RunStream(ctx, pool, history, input) {
		if delta.Err != nil {
			return nil, delta.Err
		}
		if delta.Result != nil {
			return delta.Result, nil
		}
	}
	return nil, ctx.Err()
}

func (r *fakeRunner) history() []agent.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gotHistory
}

type fakeRuntime struct {
	runner *fakeRunner

	mu             sync.Mutex
	invalidated    []uuid.UUID
	invalidatedAll int
}

func (f *fakeRuntime) RunnerFor(ag *models.Agent, tools []models.MCPServer) AgentRunner {
	return f.runner
}

func (f *fakeRuntime) Invalidate(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

func (f *fakeRuntime) InvalidateAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidatedAll++
}
