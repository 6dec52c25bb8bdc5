package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter speaks the OpenAI-compatible chat/tools API.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter builds an adapter for the given key and optional base
// URL override.
func NewOpenAIAdapter(apiKey string, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// SendTurn translates the unified conversation into one chat completion
// call and normalizes the response. Tool-call arguments arrive as JSON
// text on this API and are parsed into structured maps.
func (a *OpenAIAdapter) SendTurn(ctx context.Context, messages []Message, tools []ToolDefinition, cfg *Config) (*TurnResult, error) {
	if a == nil || a.client == nil {
		return nil, errors.New("adapter: openai: nil client")
	}
	if ctx == nil {
		return nil, errors.New("adapter: openai: nil context")
	}
	if cfg == nil {
		return nil, errors.New("adapter: openai: nil config")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:    strings.TrimSpace(cfg.Model),
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		req.Temperature = float32(*cfg.Temperature)
	}
	if cfg.Seed != nil {
		req.Seed = cfg.Seed
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	if choice := strings.TrimSpace(cfg.ToolChoice); choice != "" {
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice},
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(normalizeOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("adapter: openai: empty choices")
	}

	choice := resp.Choices[0]
	out := &TurnResult{
		Content:      choice.Message.Content,
		FinishReason: normalizeOpenAIFinish(string(choice.FinishReason)),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if out.Usage.TotalTokens == 0 {
		out.Usage.TotalTokens = out.Usage.InputTokens + out.Usage.OutputTokens
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        strings.TrimSpace(tc.ID),
			Name:      strings.TrimSpace(tc.Function.Name),
			Arguments: parseToolArguments(tc.Function.Arguments),
		})
	}
	if len(out.ToolCalls) > 0 && out.FinishReason == FinishStop {
		out.FinishReason = FinishToolUse
	}

	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case "assistant":
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
		case "tool_result":
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: strings.TrimSpace(t.Description),
				Parameters:  schema,
			},
		})
	}
	return out
}

func parseToolArguments(args string) map[string]any {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return map[string]any{"_raw": args}
	}
	return out
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "stop", "":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolUse
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func normalizeOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := ""
		if apiErr.Message != "" {
			msg = apiErr.Message
		}
		typ := ""
		if apiErr.Type != "" {
			typ = apiErr.Type
		}
		return &APIError{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Type:       typ,
			Message:    msg,
		}
	}
	return err
}
