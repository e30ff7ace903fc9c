package agent

import "fmt"

// ToolStartError reports a failure to launch or handshake a tool subprocess.
// The run is aborted before any model output exists.
type ToolStartError struct {
	Tool string
	Err  error
}

func (e *ToolStartError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tool startup failed: %v", e.Err)
	}
	return fmt.Sprintf("tool %q startup failed: %v", e.Tool, e.Err)
}

func (e *ToolStartError) Unwrap() error { return e.Err }

// ExecutionError reports a failure while the run is in flight, either from
// the model API or from dispatching a tool call.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent execution failed during %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
