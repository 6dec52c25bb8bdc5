package runner

import (
	"context"
	"errors"
	"time"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// Runner drives one trial: a multi-turn conversation loop that feeds mock
// tool results back to the model until it stops calling tools or the turn
// cap is hit. The runner never retries; that is the orchestrator's job.
type Runner struct {
	adapter adapter.Adapter
	mocks   *MockRegistry
}

// NewRunner creates a runner for one adapter instance.
func NewRunner(a adapter.Adapter, mocks *MockRegistry) *Runner {
	return &Runner{adapter: a, mocks: mocks}
}

// Run executes the scenario once and returns the trace. traceID is minted
// by the caller before execution so it survives into error paths.
func (r *Runner) Run(ctx context.Context, scn *scenario.Scenario, cfg *adapter.Config, traceID string) (*Trace, error) {
	if r == nil || r.adapter == nil {
		return nil, errors.New("runner: nil adapter")
	}
	if ctx == nil {
		return nil, errors.New("runner: nil context")
	}
	if scn == nil {
		return nil, errors.New("runner: nil scenario")
	}
	if cfg == nil {
		return nil, errors.New("runner: nil config")
	}

	messages := make([]adapter.Message, 0, 2+scn.MaxTurns*2)
	if scn.SystemPrompt != "" {
		messages = append(messages, adapter.Message{Role: "system", Content: scn.SystemPrompt})
	}
	messages = append(messages, adapter.Message{Role: "user", Content: scn.Prompt})

	tools := make([]adapter.ToolDefinition, 0, len(scn.Tools))
	for _, t := range scn.Tools {
		tools = append(tools, adapter.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	var (
		usage        adapter.Usage
		allToolCalls []adapter.ToolCall
		result       *adapter.TurnResult
	)

	start := time.Now()
	turnCount := 0

	for turnCount < scn.MaxTurns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		turnCount++

		var err error
		result, err = r.adapter.SendTurn(ctx, messages, tools, cfg)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, errors.New("runner: nil turn result")
		}

		usage.InputTokens += result.Usage.InputTokens
		usage.OutputTokens += result.Usage.OutputTokens
		usage.TotalTokens += result.Usage.TotalTokens

		messages = append(messages, adapter.Message{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		allToolCalls = append(allToolCalls, result.ToolCalls...)

		if len(result.ToolCalls) == 0 {
			break
		}

		// Resolve every tool call in the turn before the next send;
		// tool_result order matches emission order.
		for _, tc := range result.ToolCalls {
			mock, ok := r.mocks.Lookup(tc.Name)
			if !ok {
				return nil, &ToolMockMissingError{Tool: tc.Name, Available: r.mocks.Names()}
			}
			messages = append(messages, adapter.Message{
				Role:       "tool_result",
				Content:    mock,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	elapsed := time.Since(start).Seconds()

	maxTurnsHit := turnCount >= scn.MaxTurns && result != nil && len(result.ToolCalls) > 0

	finishReason := adapter.FinishError
	finalContent := ""
	if result != nil {
		finishReason = result.FinishReason
		finalContent = result.Content
	}
	if maxTurnsHit {
		finishReason = adapter.FinishLength
	}

	return &Trace{
		TraceID:        traceID,
		ScenarioHash:   scn.Hash,
		Provider:       r.adapter.Name(),
		Model:          cfg.Model,
		Messages:       messages,
		ToolCalls:      allToolCalls,
		Usage:          usage,
		LatencySeconds: elapsed,
		CostUSD:        adapter.EstimateCost(cfg.Model, usage.InputTokens, usage.OutputTokens),
		TurnCount:      turnCount,
		FinishReason:   finishReason,
		FinalContent:   finalContent,
		MaxTurnsHit:    maxTurnsHit,
		Seed:           cfg.Seed,
		Timestamp:      time.Now().UTC(),
	}, nil
}
