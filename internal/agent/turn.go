package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"agentchat-backend/internal/models"
)

// Turn is one entry in a run context. The concrete types mirror the message
// roles; tool turns carry the structured payload that the message store
// persists as JSON content.
type Turn interface {
	isTurn()
}

type UserTurn struct {
	Content string
}

type ModelTurn struct {
	Content string
}

type ToolCallTurn struct {
	CallID    string
	Tool      string
	Arguments json.RawMessage
}

type ToolResultTurn struct {
	CallID string
	Tool   string
	Result string
}

func (UserTurn) isTurn()       {}
func (ModelTurn) isTurn()      {}
func (ToolCallTurn) isTurn()   {}
func (ToolResultTurn) isTurn() {}

type toolCallPayload struct {
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolResultPayload struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

// EncodeTurn maps a turn to the role and content the message store persists.
func EncodeTurn(t Turn) (models.Role, string, error) {
	switch turn := t.(type) {
	case UserTurn:
		return models.RoleUser, turn.Content, nil
	case ModelTurn:
		return models.RoleModel, turn.Content, nil
	case ToolCallTurn:
		b, err := json.Marshal(toolCallPayload{CallID: turn.CallID, Tool: turn.Tool, Arguments: turn.Arguments})
		if err != nil {
			return "", "", fmt.Errorf("encoding tool call turn: %w", err)
		}
		return models.RoleToolCall, string(b), nil
	case ToolResultTurn:
		b, err := json.Marshal(toolResultPayload{CallID: turn.CallID, Tool: turn.Tool, Result: turn.Result})
		if err != nil {
			return "", "", fmt.Errorf("encoding tool result turn: %w", err)
		}
		return models.RoleToolResult, string(b), nil
	default:
		return "", "", fmt.Errorf("unknown turn type %T", t)
	}
}

// DecodeMessage maps a persisted message back to a turn. Tool roles must carry
// the JSON payload EncodeTurn wrote; anything else is an error the caller
// decides how to handle.
func DecodeMessage(m models.Message) (Turn, error) {
	switch m.Role {
	case models.RoleUser:
		return UserTurn{Content: m.Content}, nil
	case models.RoleModel:
		return ModelTurn{Content: m.Content}, nil
	case models.RoleToolCall:
		var p toolCallPayload
		if err := json.Unmarshal([]byte(m.Content), &p); err != nil {
			return nil, fmt.Errorf("decoding tool call payload: %w", err)
		}
		if p.Tool == "" {
			return nil, fmt.Errorf("tool call payload missing tool name")
		}
		return ToolCallTurn{CallID: p.CallID, Tool: p.Tool, Arguments: p.Arguments}, nil
	case models.RoleToolResult:
		var p toolResultPayload
		if err := json.Unmarshal([]byte(m.Content), &p); err != nil {
			return nil, fmt.Errorf("decoding tool result payload: %w", err)
		}
		if p.Tool == "" {
			return nil, fmt.Errorf("tool result payload missing tool name")
		}
		return ToolResultTurn{CallID: p.CallID, Tool: p.Tool, Result: p.Result}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// HistoryToTurns builds the run context from persisted messages. Entries that
// cannot be decoded are skipped with a warning; one bad row never discards the
// rest of the history.
func HistoryToTurns(messages []models.Message, logger *slog.Logger) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		t, err := DecodeMessage(m)
		if err != nil {
			logger.Warn("skipping malformed history entry", "message_id", m.ID, "role", m.Role, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns
}

// toChatMessages renders the run context into the wire format. Consecutive
// tool call turns collapse into a single assistant message, which is how the
// API expects replayed parallel calls.
func toChatMessages(systemPrompt string, history []Turn, input string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	var pendingCalls []openai.ToolCall
	flushCalls := func() {
		if len(pendingCalls) == 0 {
			return
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: pendingCalls,
		})
		pendingCalls = nil
	}

	for _, t := range history {
		switch turn := t.(type) {
		case UserTurn:
			flushCalls()
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: turn.Content,
			})
		case ModelTurn:
			flushCalls()
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: turn.Content,
			})
		case ToolCallTurn:
			pendingCalls = append(pendingCalls, openai.ToolCall{
				ID:   turn.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      turn.Tool,
					Arguments: string(turn.Arguments),
				},
			})
		case ToolResultTurn:
			flushCalls()
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    turn.Result,
				ToolCallID: turn.CallID,
			})
		}
	}
	flushCalls()

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})
	return msgs
}
