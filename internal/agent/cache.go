package agent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"agentchat-backend/internal/models"
)

// Config is the process-wide runtime configuration shared by all runners.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	// Empty means the default endpoint.
	BaseURL string

	// DefaultModel is used when an agent has no model of its own.
	DefaultModel string

	ToolRunner  string
	ToolEnvKeys []string
}

// Runtime builds and caches runners per agent. The cache is keyed by agent
// id only: an edited agent keeps serving its old configuration until
// Invalidate is called (the cache reset endpoint exists for exactly that).
// A reset racing an in-flight run only affects the next lookup.
type Runtime struct {
	cfg    Config
	client *openai.Client
	logger *slog.Logger

	mu      sync.RWMutex
	runners map[uuid.UUID]*Runner
}

func NewRuntime(cfg Config, logger *slog.Logger) *Runtime {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Runtime{
		cfg:     cfg,
		client:  openai.NewClientWithConfig(clientCfg),
		logger:  logger,
		runners: make(map[uuid.UUID]*Runner),
	}
}

// RunnerFor returns the cached runner for the agent, building one on miss
// from the agent's configuration and its active tool definitions.
func (rt *Runtime) RunnerFor(ag *models.Agent, tools []models.MCPServer) *Runner {
	rt.mu.RLock()
	r, ok := rt.runners[ag.ID]
	rt.mu.RUnlock()
	if ok {
		return r
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if r, ok := rt.runners[ag.ID]; ok {
		return r
	}

	model := rt.cfg.DefaultModel
	if ag.Model != nil && *ag.Model != "" {
		model = *ag.Model
	}

	defs := make([]ToolDef, len(tools))
	for i, t := range tools {
		defs[i] = ToolDef{Name: t.Name, Code: t.Code}
	}

	r = &Runner{
		client:       rt.client,
		model:        model,
		systemPrompt: ag.SystemPrompt,
		toolDefs:     defs,
		poolCfg: PoolConfig{
			Runner:  rt.cfg.ToolRunner,
			EnvKeys: rt.cfg.ToolEnvKeys,
		},
		logger:     rt.logger.With("agent_id", ag.ID),
		maxRetries: 3,
		retryDelay: time.Second,
	}
	rt.runners[ag.ID] = r
	rt.logger.Debug("built agent runner", "agent_id", ag.ID, "model", model, "tools", len(defs))
	return r
}

// Invalidate drops the cached runner for one agent.
func (rt *Runtime) Invalidate(id uuid.UUID) {
	rt.mu.Lock()
	delete(rt.runners, id)
	rt.mu.Unlock()
}

// InvalidateAll drops every cached runner.
func (rt *Runtime) InvalidateAll() {
	rt.mu.Lock()
	rt.runners = make(map[uuid.UUID]*Runner)
	rt.mu.Unlock()
}
