package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	applog "agentchat-backend/internal/log"
)

// fakePool satisfies Pool without subprocesses.
type fakePool struct {
	result string
	err    error
	calls  []string
	closed atomic.Int32
}

func (p *fakePool) Tools() []openai.Tool {
	return []openai.Tool{{
		Type:     openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{Name: "add"},
	}}
}

func (p *fakePool) Call(ctx context.Context, name, argsJSON string) (string, error) {
	p.calls = append(p.calls, name+" "+argsJSON)
	return p.result, p.err
}

func (p *fakePool) Close() error {
	p.closed.Add(1)
	return nil
}

func textChunk(text string) string {
	return fmt.Sprintf(`{"id":"1","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, text)
}

const finishToolCalls = `{"id":"1","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`

// sseServer serves one scripted streaming response per request.
func sseServer(t *testing.T, responses [][]string) *httptest.Server {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		if i >= len(responses) {
			t.Errorf("unexpected request %d to model API", i)
			http.Error(w, "too many requests", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range responses[i] {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testStreamRunner(url string) *Runner {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = url + "/v1"
	return &Runner{
		client:       openai.NewClientWithConfig(cfg),
		model:        "test-model",
		systemPrompt: "be brief",
		logger:       applog.NewNop(),
		maxRetries:   1,
	}
}

func collectDeltas(t *testing.T, ch <-chan StreamDelta) (string, *RunResult) {
	t.Helper()
	var text string
	var result *RunResult
	for delta := range ch {
		if delta.Err != nil {
			t.Fatalf("unexpected stream error: %v", delta.Err)
		}
		if delta.Result != nil {
			result = delta.Result
			continue
		}
		text += delta.Text
	}
	if result == nil {
		t.Fatal("stream ended without a terminal result")
	}
	return text, result
}

func TestRunStream_TextOnly(t *testing.T) {
	srv := sseServer(t, [][]string{
		{textChunk("Hel"), textChunk("lo")},
	})
	r := testStreamRunner(srv.URL)
	pool := &fakePool{}

	text, result := collectDeltas(t, r.RunStream(context.Background(), pool, nil, "hi"))

	if text != "Hello" {
		t.Errorf("streamed text = %q, want %q", text, "Hello")
	}
	if result.Text != "Hello" {
		t.Errorf("result text = %q, want %q", result.Text, "Hello")
	}
	wantTurns := []Turn{UserTurn{Content: "hi"}, ModelTurn{Content: "Hello"}}
	if len(result.Turns) != len(wantTurns) {
		t.Fatalf("result has %d turns, want %d: %#v", len(result.Turns), len(wantTurns), result.Turns)
	}
	if result.Turns[0] != wantTurns[0] || result.Turns[1] != wantTurns[1] {
		t.Errorf("turns = %#v, want %#v", result.Turns, wantTurns)
	}
	if len(pool.calls) != 0 {
		t.Errorf("pool received %d calls, want 0", len(pool.calls))
	}
}

func TestRunStream_ToolLoop(t *testing.T) {
	toolCallStart := `{"id":"1","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":"}}]},"finish_reason":null}]}`
	toolCallArgs := `{"id":"1","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]},"finish_reason":null}]}`

	srv := sseServer(t, [][]string{
		{toolCallStart, toolCallArgs, finishToolCalls},
		{textChunk("The answer is 1")},
	})
	r := testStreamRunner(srv.URL)
	pool := &fakePool{result: "1"}

	text, result := collectDeltas(t, r.RunStream(context.Background(), pool, nil, "add it"))

	if text != "The answer is 1" {
		t.Errorf("streamed text = %q, want %q", text, "The answer is 1")
	}
	if len(pool.calls) != 1 || pool.calls[0] != `add {"a":1}` {
		t.Errorf("pool calls = %v, want [add {\"a\":1}]", pool.calls)
	}

	// User, tool call, tool result, final model text.
	if len(result.Turns) != 4 {
		t.Fatalf("result has %d turns, want 4: %#v", len(result.Turns), result.Turns)
	}
	call, ok := result.Turns[1].(ToolCallTurn)
	if !ok || call.Tool != "add" || call.CallID != "call_1" || string(call.Arguments) != `{"a":1}` {
		t.Errorf("turns[1] = %#v, want accumulated add call", result.Turns[1])
	}
	res, ok := result.Turns[2].(ToolResultTurn)
	if !ok || res.Result != "1" || res.CallID != "call_1" {
		t.Errorf("turns[2] = %#v, want tool result", result.Turns[2])
	}
	if m, ok := result.Turns[3].(ModelTurn); !ok || m.Content != "The answer is 1" {
		t.Errorf("turns[3] = %#v, want final model turn", result.Turns[3])
	}
}

func TestRunStream_ToolFailure(t *testing.T) {
	toolCall := `{"id":"1","object":"chat.completion.chunk","created":1,"model":"test-model","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add","arguments":"{}"}}]},"finish_reason":null}]}`
	srv := sseServer(t, [][]string{
		{toolCall, finishToolCalls},
	})
	r := testStreamRunner(srv.URL)
	pool := &fakePool{err: &ExecutionError{Op: "tool call", Err: errors.New("process died")}}

	var gotErr error
	for delta := range r.RunStream(context.Background(), pool, nil, "go") {
		if delta.Err != nil {
			gotErr = delta.Err
		}
		if delta.Result != nil {
			t.Fatal("expected failure, got a result")
		}
	}

	var execErr *ExecutionError
	if !errors.As(gotErr, &execErr) {
		t.Fatalf("stream error type = %T, want *ExecutionError", gotErr)
	}
}

func TestRun_Blocking(t *testing.T) {
	srv := sseServer(t, [][]string{
		{textChunk("ok")},
	})
	r := testStreamRunner(srv.URL)

	result, err := r.Run(context.Background(), &fakePool{}, nil, "hi")
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("Run() text = %q, want %q", result.Text, "ok")
	}
}

func TestRunStream_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	r := testStreamRunner(srv.URL)

	_, err := r.Run(context.Background(), &fakePool{}, nil, "hi")
	if err == nil {
		t.Fatal("Run() expected error, got nil")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("Run() error type = %T, want *ExecutionError", err)
	}
}
