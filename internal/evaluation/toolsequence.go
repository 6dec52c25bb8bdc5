package evaluation

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// ToolSequenceEvaluator compares the observed tool-name sequence against
// the expected one under EXACT, IN_ORDER, or ANY_ORDER matching.
type ToolSequenceEvaluator struct{}

func (ToolSequenceEvaluator) Type() string {
	return "tool_sequence"
}

func (ToolSequenceEvaluator) Evaluate(_ context.Context, tr *runner.Trace, a *scenario.Assertion, _ *Context) (*EvalResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("tool_sequence: nil trace")
	}
	if a == nil {
		return nil, fmt.Errorf("tool_sequence: nil assertion")
	}

	out := &EvalResult{
		AssertionType: "tool_sequence",
		Weight:        a.Weight,
		Required:      a.Required,
	}

	actual := make([]string, 0, len(tr.ToolCalls))
	for _, tc := range tr.ToolCalls {
		actual = append(actual, tc.Name)
	}

	var passed bool
	var details string
	switch a.Mode {
	case scenario.ModeExact:
		passed, details = matchExact(actual, a.Sequence)
	case scenario.ModeInOrder:
		passed, details = matchInOrder(actual, a.Sequence)
	case scenario.ModeAnyOrder:
		passed, details = matchAnyOrder(actual, a.Sequence)
	default:
		out.Details = fmt.Sprintf("unknown mode %q", a.Mode)
		return out, nil
	}

	out.Passed = passed
	if passed {
		out.Score = 1.0
	}
	out.Details = details
	return out, nil
}

// matchExact requires observed == expected in length and order. On
// failure it names the first point of divergence.
func matchExact(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("no tool calls made, expected %v", expected)
	}

	n := len(actual)
	if len(expected) < n {
		n = len(expected)
	}
	for i := 0; i < n; i++ {
		if actual[i] != expected[i] {
			return false, fmt.Sprintf("divergence at index %d: expected %q, actual %q (actual=%v expected=%v)",
				i, expected[i], actual[i], actual, expected)
		}
	}

	if len(actual) < len(expected) {
		return false, fmt.Sprintf("too few tool calls: got %d, expected %d, missing %v",
			len(actual), len(expected), expected[len(actual):])
	}
	if len(actual) > len(expected) {
		return false, fmt.Sprintf("too many tool calls: got %d, expected %d, extra %v",
			len(actual), len(expected), actual[len(expected):])
	}
	return true, fmt.Sprintf("exact match: %v", actual)
}

// matchInOrder requires expected to be a subsequence of observed; extras
// are allowed anywhere.
func matchInOrder(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("no tool calls made, expected %v", expected)
	}

	ei := 0
	for _, name := range actual {
		if ei < len(expected) && name == expected[ei] {
			ei++
		}
	}
	if ei == len(expected) {
		return true, fmt.Sprintf("in-order match: found %v within %v", expected, actual)
	}
	return false, fmt.Sprintf("in-order match stalled at index %d: matched %v but never found %q (actual=%v expected=%v)",
		ei, expected[:ei], expected[ei], actual, expected)
}

// matchAnyOrder requires every expected tool to appear at least as many
// times as expected, order ignored.
func matchAnyOrder(actual, expected []string) (bool, string) {
	if len(actual) == 0 && len(expected) > 0 {
		return false, fmt.Sprintf("no tool calls made, expected %v", expected)
	}

	actualCounts := make(map[string]int, len(actual))
	for _, name := range actual {
		actualCounts[name]++
	}
	expectedCounts := make(map[string]int, len(expected))
	for _, name := range expected {
		expectedCounts[name]++
	}

	var missing []string
	for _, name := range expected {
		if expectedCounts[name] == 0 {
			continue
		}
		want := expectedCounts[name]
		got := actualCounts[name]
		if got < want {
			missing = append(missing, fmt.Sprintf("%s (expected %d, got %d)", name, want, got))
		}
		expectedCounts[name] = 0
	}

	if len(missing) > 0 {
		return false, fmt.Sprintf("missing tool calls: %v", missing)
	}
	return true, fmt.Sprintf("any-order match: all of %v found in %v", expected, actual)
}
