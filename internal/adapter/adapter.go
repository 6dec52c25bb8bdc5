package adapter

import (
	"context"
	"time"
)

// Message is the provider-agnostic conversation message. The tool_result
// role carries a mock tool payload back to the model; adapters translate
// it into whatever shape the provider expects.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool_result
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolCall is one tool invocation emitted by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Usage accumulates token counts for one or more turns.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Finish reasons normalized across providers.
const (
	FinishStop          = "stop"
	FinishToolUse       = "tool_use"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// TurnResult is one model turn: assistant text, any tool calls, and usage.
type TurnResult struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason"`
}

// Config carries per-call model parameters. Extras must have passed
// ValidateExtras before reaching an adapter.
type Config struct {
	Model       string
	Temperature *float64
	Seed        *int
	MaxTokens   int
	Timeout     time.Duration
	// ToolChoice forces the model to call the named tool. Used by the
	// judge to guarantee structured output.
	ToolChoice string
	Extras     map[string]any
}

// Adapter is the provider-agnostic single-turn contract: given the
// conversation so far and the available tools, return one model turn.
type Adapter interface {
	Name() string
	SendTurn(ctx context.Context, messages []Message, tools []ToolDefinition, cfg *Config) (*TurnResult, error)
}

// Factory builds a fresh adapter. The orchestrator constructs one adapter
// per trial so provider clients never share state across trials.
type Factory func() (Adapter, error)
