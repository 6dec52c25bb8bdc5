package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

const (
	anthropicVersionHeader = "2023-06-01"

	// The messages API requires max_tokens; this is the fallback when a
	// scenario does not set one.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicAdapter speaks the Anthropic messages/tool-use API.
type AnthropicAdapter struct {
	client *anthropic.Client
}

// NewAnthropicAdapter builds an adapter for the given key and optional
// base URL override.
func NewAnthropicAdapter(apiKey string, baseURL string) *AnthropicAdapter {
	opts := make([]option.RequestOption, 0, 4)
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")))
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	opts = append(opts, option.WithMaxRetries(0))
	opts = append(opts, option.WithHeader("anthropic-version", anthropicVersionHeader))

	client := anthropic.NewClient(opts...)
	return &AnthropicAdapter{client: &client}
}

func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// SendTurn translates the unified conversation into one messages API call.
// The system prompt is lifted to a top-level parameter, tool results are
// wrapped in user-role tool_result blocks, and tool arguments come back
// already structured. The seed parameter has no equivalent here and is
// not forwarded.
func (a *AnthropicAdapter) SendTurn(ctx context.Context, messages []Message, tools []ToolDefinition, cfg *Config) (*TurnResult, error) {
	if a == nil || a.client == nil {
		return nil, errors.New("adapter: anthropic: nil client")
	}
	if ctx == nil {
		return nil, errors.New("adapter: anthropic: nil context")
	}
	if cfg == nil {
		return nil, errors.New("adapter: anthropic: nil config")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(cfg.Model)),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(messages),
	}
	if system := systemPrompt(messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}
	if cfg.Temperature != nil {
		params.Temperature = param.NewOpt(*cfg.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	if choice := strings.TrimSpace(cfg.ToolChoice); choice != "" {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: choice},
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(normalizeAnthropicError(err))
	}
	if msg == nil {
		return nil, errors.New("adapter: anthropic: nil response")
	}

	out := &TurnResult{
		FinishReason: normalizeAnthropicStop(string(msg.StopReason)),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	out.Usage.TotalTokens = out.Usage.InputTokens + out.Usage.OutputTokens

	var sb strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			sb.WriteString(block.AsText().Text)
		case "tool_use":
			tool := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tool.ID,
				Name:      tool.Name,
				Arguments: decodeToolInput(tool.Input),
			})
		}
	}
	out.Content = sb.String()

	return out, nil
}

func systemPrompt(messages []Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == "system" && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			// Lifted to the top-level system parameter.
		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case "tool_result":
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
				},
			})
		default:
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(m.Content),
				},
			})
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: toAnthropicInputSchema(t.InputSchema),
		}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			tool.Description = param.NewOpt(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func toAnthropicInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	out := anthropic.ToolInputSchemaParam{Type: "object"}
	if schema == nil {
		return out
	}

	if props, ok := schema["properties"]; ok {
		out.Properties = props
	}
	if required, ok := schema["required"]; ok {
		out.Required = toStringSlice(required)
	}

	extra := make(map[string]any)
	for k, v := range schema {
		if k == "properties" || k == "required" || k == "type" {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		out.ExtraFields = extra
	}

	return out
}

func toStringSlice(v any) []string {
	switch value := v.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func decodeToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return FinishStop
	case "tool_use":
		return FinishToolUse
	case "max_tokens":
		return FinishLength
	case "refusal":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	var sdkErr *anthropic.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{
			Provider:   "anthropic",
			StatusCode: sdkErr.StatusCode,
		}
		if raw := strings.TrimSpace(sdkErr.RawJSON()); raw != "" {
			var env anthropicErrorEnvelope
			if json.Unmarshal([]byte(raw), &env) == nil {
				apiErr.Type = env.Error.Type
				apiErr.Message = env.Error.Message
			}
		}
		return apiErr
	}
	return err
}
