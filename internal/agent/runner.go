package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// maxToolIterations bounds the model/tool loop of a single run.
const maxToolIterations = 10

// Runner drives runs for one agent configuration. Build via Runtime; a
// Runner is safe for concurrent use and cached across requests.
type Runner struct {
	client       *openai.Client
	model        string
	systemPrompt string
	toolDefs     []ToolDef
	poolCfg      PoolConfig
	logger       *slog.Logger

	maxRetries int
	retryDelay time.Duration
}

// RunResult is the outcome of a completed run: the final text plus the full
// structured turn list (user input, tool calls/results, final model turn).
type RunResult struct {
	Text  string
	Turns []Turn
}

// StreamDelta is one event on a RunStream channel. Exactly one terminal
// delta is sent: Result on success, Err on failure. Text deltas carry
// incremental model output across all loop iterations.
type StreamDelta struct {
	Text   string
	Result *RunResult
	Err    error
}

// StartTools launches the runner's tool subprocesses for one run. The caller
// owns the returned pool and must Close it on every path.
func (r *Runner) StartTools(ctx context.Context) (Pool, error) {
	return StartToolPool(ctx, r.toolDefs, r.poolCfg, r.logger)
}

// Run executes the model/tool loop to completion and returns the final
// result. Blocking variant of RunStream.
func (r *Runner) Run(ctx context.Context, pool Pool, history []Turn, input string) (*RunResult, error) {
	for delta := range r.RunStream(ctx, pool, history, input) {
		if delta.Err != nil {
			return nil, delta.Err
		}
		if delta.Result != nil {
			return delta.Result, nil
		}
	}
	err := ctx.Err()
	if err == nil {
		err = errors.New("run aborted before completion")
	}
	return nil, &ExecutionError{Op: "run", Err: err}
}

// RunStream executes the model/tool loop, emitting text deltas as they
// arrive. The channel is finite and closed by the producer; the terminal
// delta carries either the RunResult or an error. Cancelling ctx unblocks
// the producer even if the caller stops reading. The pool is not closed
// here; that is the caller's job.
func (r *Runner) RunStream(ctx context.Context, pool Pool, history []Turn, input string) <-chan StreamDelta {
	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		r.runLoop(ctx, pool, history, input, out)
	}()
	return out
}

// emit sends a delta unless ctx is done. Returns false when the run should
// stop because the consumer is gone.
func emit(ctx context.Context, out chan<- StreamDelta, d StreamDelta) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) runLoop(ctx context.Context, pool Pool, history []Turn, input string, out chan<- StreamDelta) {
	messages := toChatMessages(r.systemPrompt, history, input)
	tools := pool.Tools()

	turns := []Turn{UserTurn{Content: input}}
	var text strings.Builder

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		req := openai.ChatCompletionRequest{
			Model:    r.model,
			Messages: messages,
			Stream:   true,
		}
		if len(tools) > 0 {
			req.Tools = tools
		}

		stream, err := r.createStream(ctx, req)
		if err != nil {
			emit(ctx, out, StreamDelta{Err: &ExecutionError{Op: "model request", Err: err}})
			return
		}

		calls, done := r.consumeStream(ctx, stream, &text, out)
		stream.Close()
		if !done {
			return
		}

		if len(calls) == 0 {
			turns = append(turns, ModelTurn{Content: text.String()})
			emit(ctx, out, StreamDelta{Result: &RunResult{Text: text.String(), Turns: turns}})
			return
		}

		// Replay the assistant's tool calls, then dispatch each one and
		// feed the results back for the next iteration.
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: calls,
		})
		for _, call := range calls {
			turns = append(turns, ToolCallTurn{
				CallID:    call.ID,
				Tool:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			})

			r.logger.Debug("dispatching tool call", "tool", call.Function.Name, "call_id", call.ID)
			result, err := pool.Call(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				emit(ctx, out, StreamDelta{Err: err})
				return
			}

			turns = append(turns, ToolResultTurn{
				CallID: call.ID,
				Tool:   call.Function.Name,
				Result: result,
			})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	emit(ctx, out, StreamDelta{Err: &ExecutionError{
		Op:  "model loop",
		Err: fmt.Errorf("tool iteration limit (%d) exceeded", maxToolIterations),
	}})
}

// consumeStream reads one streaming response, forwarding text deltas and
// accumulating tool call fragments by index. Returns the completed tool
// calls and whether the run should continue.
func (r *Runner) consumeStream(ctx context.Context, stream *openai.ChatCompletionStream, text *strings.Builder, out chan<- StreamDelta) ([]openai.ToolCall, bool) {
	pending := make(map[int]*openai.ToolCall)
	var order []int

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, false
			}
			emit(ctx, out, StreamDelta{Err: &ExecutionError{Op: "model stream", Err: err}})
			return nil, false
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !emit(ctx, out, StreamDelta{Text: delta.Content}) {
				return nil, false
			}
		}

		// Tool call fragments arrive incrementally; the index tracks
		// parallel calls, arguments concatenate across chunks.
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call, ok := pending[index]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[index] = call
				order = append(order, index)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	calls := make([]openai.ToolCall, 0, len(order))
	for _, index := range order {
		call := pending[index]
		if call.ID != "" && call.Function.Name != "" {
			calls = append(calls, *call)
		}
	}
	return calls, true
}

// createStream opens the streaming request with linear-backoff retries for
// transient API failures.
func (r *Runner) createStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}

		stream, err := r.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		r.logger.Warn("retrying model request", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
