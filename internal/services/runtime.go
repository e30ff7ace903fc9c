package services

import (
	"context"

	"github.com/google/uuid"

	"agentchat-backend/internal/agent"
	"agentchat-backend/internal/models"
)

// AgentRunner drives a single agent's runs. Satisfied by *agent.Runner;
// an interface so chat service tests can substitute scripted fakes.
type AgentRunner interface {
	StartTools(ctx context.Context) (agent.Pool, error)
	Run(ctx context.Context, pool agent.Pool, history []agent.Turn, input string) (*agent.RunResult, error)
	RunStream(ctx context.Context, pool agent.Pool, history []agent.Turn, input string) <-chan agent.StreamDelta
}

// AgentRuntime hands out runners per agent and owns the adapter cache.
type AgentRuntime interface {
	RunnerFor(ag *models.Agent, tools []models.MCPServer) AgentRunner
	Invalidate(id uuid.UUID)
	InvalidateAll()
}

type runtimeAdapter struct {
	rt *agent.Runtime
}

// NewAgentRuntime wraps the concrete runtime in the service-level interface.
func NewAgentRuntime(rt *agent.Runtime) AgentRuntime {
	return runtimeAdapter{rt: rt}
}

func (a runtimeAdapter) RunnerFor(ag *models.Agent, tools []models.MCPServer) AgentRunner {
	return a.rt.RunnerFor(ag, tools)
}

func (a runtimeAdapter) Invalidate(id uuid.UUID) { a.rt.Invalidate(id) }
func (a runtimeAdapter) InvalidateAll()          { a.rt.InvalidateAll() }
