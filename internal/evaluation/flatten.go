package evaluation

import (
	"encoding/json"

	"github.com/jherleth/salvo-ai/internal/runner"
)

// BuildTraceData projects a trace into the JSON-shaped view that query
// evaluators run against. Four top-level names are exposed:
//
//	response   final assistant content + finish_reason
//	turns      the ordered message list
//	tool_calls the flat tool-call list with arguments
//	metadata   model, provider, cost, latency, tokens, turn count
func BuildTraceData(tr *runner.Trace) map[string]any {
	if tr == nil {
		return nil
	}

	var costUSD any
	if tr.CostUSD != nil {
		costUSD = *tr.CostUSD
	}

	return map[string]any{
		"response": map[string]any{
			"content":       tr.FinalContent,
			"finish_reason": tr.FinishReason,
		},
		"turns":      toJSONValue(tr.Messages),
		"tool_calls": toJSONValue(tr.ToolCalls),
		"metadata": map[string]any{
			"model":           tr.Model,
			"provider":        tr.Provider,
			"cost_usd":        costUSD,
			"latency_seconds": tr.LatencySeconds,
			"input_tokens":    float64(tr.Usage.InputTokens),
			"output_tokens":   float64(tr.Usage.OutputTokens),
			"total_tokens":    float64(tr.Usage.TotalTokens),
			"turn_count":      float64(tr.TurnCount),
			"finish_reason":   tr.FinishReason,
			"max_turns_hit":   tr.MaxTurnsHit,
		},
	}
}

// toJSONValue round-trips a value through JSON so queries see plain maps,
// slices, and float64 numbers regardless of the Go types underneath.
func toJSONValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	if out == nil {
		return []any{}
	}
	return out
}
