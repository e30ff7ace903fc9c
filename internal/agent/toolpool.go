package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// ToolDef is one tool server to launch: user-registered script source run
// through the configured runner entrypoint.
type ToolDef struct {
	Name string
	Code string
}

// Pool is the set of running tool subprocesses for a single agent run.
// Implemented by ToolPool; an interface so tests can substitute fakes.
type Pool interface {
	// Tools returns the merged tool declarations for the model request.
	Tools() []openai.Tool

	// Call dispatches a tool call to the owning subprocess and returns the
	// text result. A dead or unreachable subprocess is an *ExecutionError.
	Call(ctx context.Context, name string, argsJSON string) (string, error)

	// Close terminates every subprocess and removes the run directory.
	// Safe to call more than once.
	Close() error
}

type toolServer struct {
	def     ToolDef
	session *mcp.ClientSession
}

// ToolPool runs one MCP stdio subprocess per tool definition.
type ToolPool struct {
	dir     string
	servers []*toolServer
	byTool  map[string]*toolServer
	decls   []openai.Tool
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// PoolConfig is process-wide tool launch configuration. The subprocess
// environment is assembled from EnvKeys only; user input never reaches it.
type PoolConfig struct {
	// Runner is the interpreter entrypoint, e.g. "python3".
	Runner string

	// EnvKeys are environment variable names passed through from the server
	// process to tool subprocesses, in addition to PATH and HOME.
	EnvKeys []string
}

// StartToolPool launches one subprocess per definition, connects each as an
// MCP stdio client and waits for the initialize handshake plus tools/list.
// Any failure shuts down everything already started and returns a
// *ToolStartError; a pool is never returned partially alive.
func StartToolPool(ctx context.Context, defs []ToolDef, cfg PoolConfig, logger *slog.Logger) (*ToolPool, error) {
	dir, err := os.MkdirTemp("", "agent-tools-*")
	if err != nil {
		return nil, &ToolStartError{Err: fmt.Errorf("creating run directory: %w", err)}
	}

	pool := &ToolPool{
		dir:     dir,
		servers: make([]*toolServer, len(defs)),
		byTool:  make(map[string]*toolServer),
		logger:  logger,
	}

	env := subprocessEnv(cfg.EnvKeys)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		g.Go(func() error {
			// No extension: the configured runner decides how to execute it.
			script := filepath.Join(dir, fmt.Sprintf("tool_%d", i))
			if err := os.WriteFile(script, []byte(def.Code), 0o600); err != nil {
				return &ToolStartError{Tool: def.Name, Err: fmt.Errorf("writing tool script: %w", err)}
			}

			cmd := exec.Command(cfg.Runner, script)
			cmd.Env = env

			client := mcp.NewClient(&mcp.Implementation{
				Name:    "agentchat-backend",
				Version: "1.0.0",
			}, nil)

			session, err := client.Connect(gctx, &mcp.CommandTransport{Command: cmd}, nil)
			if err != nil {
				return &ToolStartError{Tool: def.Name, Err: fmt.Errorf("connecting: %w", err)}
			}

			srv := &toolServer{def: def, session: session}
			mu.Lock()
			pool.servers[i] = srv
			mu.Unlock()

			listed, err := session.ListTools(gctx, nil)
			if err != nil {
				return &ToolStartError{Tool: def.Name, Err: fmt.Errorf("listing tools: %w", err)}
			}

			mu.Lock()
			defer mu.Unlock()
			for _, t := range listed.Tools {
				if _, dup := pool.byTool[t.Name]; dup {
					return &ToolStartError{Tool: def.Name, Err: fmt.Errorf("duplicate tool name %q", t.Name)}
				}
				pool.byTool[t.Name] = srv
				pool.decls = append(pool.decls, openai.Tool{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        t.Name,
						Description: t.Description,
						Parameters:  t.InputSchema,
					},
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug("tool pool started", "servers", len(defs), "tools", len(pool.decls))
	return pool, nil
}

func subprocessEnv(keys []string) []string {
	env := make([]string, 0, len(keys)+2)
	for _, name := range append([]string{"PATH", "HOME"}, keys...) {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

func (p *ToolPool) Tools() []openai.Tool {
	return p.decls
}

func (p *ToolPool) Call(ctx context.Context, name string, argsJSON string) (string, error) {
	srv, ok := p.byTool[name]
	if !ok {
		return "", &ExecutionError{Op: "tool dispatch", Err: fmt.Errorf("unknown tool %q", name)}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", &ExecutionError{Op: "tool dispatch", Err: fmt.Errorf("invalid arguments for %q: %w", name, err)}
		}
	}

	result, err := srv.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", &ExecutionError{Op: "tool call", Err: fmt.Errorf("tool %q: %w", name, err)}
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	text := sb.String()

	// Tool-level errors flow back to the model as result text; only
	// transport failures abort the run.
	if result.IsError {
		p.logger.Warn("tool returned error result", "tool", name)
		if text == "" {
			text = fmt.Sprintf("tool %q reported an error", name)
		}
	}
	return text, nil
}

func (p *ToolPool) Close() error {
	p.closeOnce.Do(func() {
		for _, srv := range p.servers {
			if srv == nil {
				continue
			}
			if err := srv.session.Close(); err != nil {
				p.logger.Warn("closing tool session", "tool", srv.def.Name, "error", err)
				p.closeErr = err
			}
		}
		if err := os.RemoveAll(p.dir); err != nil {
			p.logger.Warn("removing tool run directory", "error", err)
		}
	})
	return p.closeErr
}
