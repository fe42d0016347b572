// Package llm defines the chat-completion capability the agent consumes and
// a Groq/OpenAI-compatible HTTP client implementing it.
package llm

import "context"

// Message is one entry in a chat-completion exchange.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested invocation of a declared tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// CompletionClient produces one assistant message for a conversation.
type CompletionClient interface {
	Complete(ctx context.Context, model string, msgs []Message, tools []Tool) (Message, error)
}
