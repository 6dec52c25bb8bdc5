package runner

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// Trace is the full record of one trial: the conversation, the flat tool
// call list in emission order, aggregated usage, timing, and cost.
type Trace struct {
	TraceID        string             `json:"trace_id"`
	ScenarioHash   string             `json:"scenario_hash"`
	Provider       string             `json:"provider"`
	Model          string             `json:"model"`
	Messages       []adapter.Message  `json:"messages"`
	ToolCalls      []adapter.ToolCall `json:"tool_calls"`
	Usage          adapter.Usage      `json:"usage"`
	LatencySeconds float64            `json:"latency_seconds"`
	CostUSD        *float64           `json:"cost_usd,omitempty"`
	TurnCount      int                `json:"turn_count"`
	FinishReason   string             `json:"finish_reason"`
	FinalContent   string             `json:"final_content,omitempty"`
	MaxTurnsHit    bool               `json:"max_turns_hit"`
	Seed           *int               `json:"seed,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// ToolMockMissingError means the model called a tool the scenario defines
// no mock for. The trial cannot continue; this is an infra error, not an
// assertion failure.
type ToolMockMissingError struct {
	Tool      string
	Available []string
}

func (e *ToolMockMissingError) Error() string {
	if e == nil {
		return "runner: tool mock missing"
	}
	available := "none"
	if len(e.Available) > 0 {
		available = fmt.Sprintf("%v", e.Available)
	}
	return fmt.Sprintf("runner: model called tool %q but no mock_response is defined (available mocks: %s)", e.Tool, available)
}

// MockRegistry maps tool names to their serialized mock payloads. Built
// once from the scenario and read-only afterwards, so trials can share it.
type MockRegistry struct {
	responses map[string]string
}

// NewMockRegistry serializes each tool's mock_response: strings are used
// as-is, every other value becomes JSON.
func NewMockRegistry(tools []scenario.Tool) *MockRegistry {
	responses := make(map[string]string, len(tools))
	for _, t := range tools {
		if t.MockResponse == nil {
			continue
		}
		switch v := t.MockResponse.(type) {
		case string:
			responses[t.Name] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				responses[t.Name] = fmt.Sprintf("%v", v)
				continue
			}
			responses[t.Name] = string(b)
		}
	}
	return &MockRegistry{responses: responses}
}

// Lookup returns the mock payload for a tool name.
func (r *MockRegistry) Lookup(name string) (string, bool) {
	if r == nil || r.responses == nil {
		return "", false
	}
	v, ok := r.responses[name]
	return v, ok
}

// Names lists the tools that have mocks, sorted.
func (r *MockRegistry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.responses))
	for name := range r.responses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
