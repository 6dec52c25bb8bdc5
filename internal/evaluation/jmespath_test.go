package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

func sampleTrace() *runner.Trace {
	cost := 0.0123
	return &runner.Trace{
		TraceID:      "t1",
		ScenarioHash: "h1",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Messages: []adapter.Message{
			{Role: "system", Content: "be helpful"},
			{Role: "user", Content: "find iceland population"},
			{Role: "assistant", ToolCalls: []adapter.ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{"query": "iceland"}}}},
			{Role: "tool_result", Content: "387,000", ToolCallID: "c1", ToolName: "search"},
			{Role: "assistant", Content: "About 387,000 people live in Iceland."},
		},
		ToolCalls:      []adapter.ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{"query": "iceland"}}},
		Usage:          adapter.Usage{InputTokens: 30, OutputTokens: 20, TotalTokens: 50},
		LatencySeconds: 1.25,
		CostUSD:        &cost,
		TurnCount:      2,
		FinishReason:   adapter.FinishStop,
		FinalContent:   "About 387,000 people live in Iceland.",
	}
}

func jmesAssert(expr, op string, value any) *scenario.Assertion {
	return &scenario.Assertion{Type: "jmespath", Expression: expr, Operator: op, Value: value, Weight: 1.0}
}

func evalJMES(t *testing.T, a *scenario.Assertion) *EvalResult {
	t.Helper()
	res, err := (JMESPathEvaluator{}).Evaluate(context.Background(), sampleTrace(), a, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return res
}

func TestJMESPath_Operators(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a    *scenario.Assertion
		pass bool
	}{
		{"eq number", jmesAssert("metadata.turn_count", "eq", 2), true},
		{"eq number yaml int", jmesAssert("metadata.turn_count", "eq", int(2)), true},
		{"eq mismatch", jmesAssert("metadata.turn_count", "eq", 3), false},
		{"ne", jmesAssert("metadata.turn_count", "ne", 3), true},
		{"gt", jmesAssert("metadata.total_tokens", "gt", 40), true},
		{"gte equal", jmesAssert("metadata.turn_count", "gte", 2), true},
		{"lt fail", jmesAssert("metadata.latency_seconds", "lt", 1.0), false},
		{"lte", jmesAssert("metadata.latency_seconds", "lte", 1.25), true},
		{"contains string", jmesAssert("response.content", "contains", "387,000"), true},
		{"contains string miss", jmesAssert("response.content", "contains", "greenland"), false},
		{"contains list", jmesAssert("tool_calls[].name", "contains", "search"), true},
		{"regex", jmesAssert("response.content", "regex", `\d{3},\d{3}`), true},
		{"regex miss", jmesAssert("response.content", "regex", `^xyz$`), false},
		{"exists hit", jmesAssert("tool_calls[0]", "exists", nil), true},
		{"exists missing path", jmesAssert("metadata.nonexistent", "exists", nil), false},
		{"eq string", jmesAssert("metadata.finish_reason", "eq", "stop"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := evalJMES(t, tc.a)
			if res.Passed != tc.pass {
				t.Fatalf("Passed: got %v want %v (%s)", res.Passed, tc.pass, res.Details)
			}
			wantScore := 0.0
			if tc.pass {
				wantScore = 1.0
			}
			if res.Score != wantScore {
				t.Fatalf("Score: got %v want %v", res.Score, wantScore)
			}
		})
	}
}

func TestJMESPath_NoImplicitStringCoercion(t *testing.T) {
	t.Parallel()

	// finish_reason is a string; numeric comparison must fail rather
	// than coerce.
	res := evalJMES(t, jmesAssert("metadata.finish_reason", "gt", 1))
	if res.Passed {
		t.Fatalf("string operand should not coerce to number")
	}
	if !strings.Contains(res.Details, "requires numbers") {
		t.Fatalf("Details: got %q", res.Details)
	}
}

func TestJMESPath_MissingPathFailsComparison(t *testing.T) {
	t.Parallel()

	res := evalJMES(t, jmesAssert("metadata.nope", "eq", 1))
	if res.Passed {
		t.Fatalf("missing path should fail")
	}
}

func TestJMESPath_InvalidExpression(t *testing.T) {
	t.Parallel()

	res := evalJMES(t, jmesAssert("[[invalid", "eq", 1))
	if res.Passed || res.Score != 0 {
		t.Fatalf("invalid expression should fail: %+v", res)
	}
	if !strings.Contains(res.Details, "invalid query path") {
		t.Fatalf("Details: got %q", res.Details)
	}
}

func TestJMESPath_InvalidRegex(t *testing.T) {
	t.Parallel()

	res := evalJMES(t, jmesAssert("response.content", "regex", "([unclosed"))
	if res.Passed {
		t.Fatalf("invalid regex should fail")
	}
}

func TestJMESPath_ToolCallFilter(t *testing.T) {
	t.Parallel()

	res := evalJMES(t, jmesAssert("tool_calls[?name=='search'] | [0].arguments.query", "eq", "iceland"))
	if !res.Passed {
		t.Fatalf("filter query failed: %s", res.Details)
	}
}

func TestBuildTraceData_NilCost(t *testing.T) {
	t.Parallel()

	tr := sampleTrace()
	tr.CostUSD = nil
	data := BuildTraceData(tr)

	meta, _ := data["metadata"].(map[string]any)
	if meta["cost_usd"] != nil {
		t.Fatalf("cost_usd: got %v want nil", meta["cost_usd"])
	}
}
