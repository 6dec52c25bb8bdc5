package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

func floatPtr(v float64) *float64 { return &v }

func TestCostLimit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cost *float64
		max  float64
		pass bool
	}{
		{"under", floatPtr(0.005), 0.01, true},
		{"equal", floatPtr(0.01), 0.01, true},
		{"over", floatPtr(0.03), 0.01, false},
		{"unknown fails closed", nil, 0.01, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tr := &runner.Trace{Model: "mystery-model", CostUSD: tc.cost}
			a := &scenario.Assertion{Type: "cost_limit", MaxUSD: floatPtr(tc.max), Weight: 1.0}

			res, err := (CostLimitEvaluator{}).Evaluate(context.Background(), tr, a, nil)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Passed != tc.pass {
				t.Fatalf("Passed: got %v want %v (%s)", res.Passed, tc.pass, res.Details)
			}
			if tc.cost == nil && !strings.Contains(res.Details, "unknown cost") {
				t.Fatalf("Details should explain unknown cost: %q", res.Details)
			}
		})
	}
}

func TestLatencyLimit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		latency float64
		max     float64
		pass    bool
	}{
		{"under", 1.5, 2.0, true},
		{"equal", 2.0, 2.0, true},
		{"over", 3.0, 2.0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tr := &runner.Trace{LatencySeconds: tc.latency}
			a := &scenario.Assertion{Type: "latency_limit", MaxSeconds: floatPtr(tc.max), Weight: 1.0}

			res, err := (LatencyLimitEvaluator{}).Evaluate(context.Background(), tr, a, nil)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Passed != tc.pass {
				t.Fatalf("Passed: got %v want %v (%s)", res.Passed, tc.pass, res.Details)
			}
		})
	}
}
