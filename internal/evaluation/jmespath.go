package evaluation

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// JMESPathEvaluator queries the flattened trace view with a JMESPath
// expression and applies a comparison operator to the result.
type JMESPathEvaluator struct{}

func (JMESPathEvaluator) Type() string {
	return "jmespath"
}

func (JMESPathEvaluator) Evaluate(_ context.Context, tr *runner.Trace, a *scenario.Assertion, _ *Context) (*EvalResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("jmespath: nil trace")
	}
	if a == nil {
		return nil, fmt.Errorf("jmespath: nil assertion")
	}

	out := &EvalResult{
		AssertionType: "jmespath",
		Weight:        a.Weight,
		Required:      a.Required,
	}

	data := BuildTraceData(tr)

	actual, err := jmespath.Search(a.Expression, data)
	if err != nil {
		out.Details = fmt.Sprintf("invalid query path %q: %v", a.Expression, err)
		return out, nil
	}

	passed, detail := compare(actual, a.Operator, a.Value)
	out.Passed = passed
	if passed {
		out.Score = 1.0
	}
	out.Details = fmt.Sprintf("path=%q operator=%s expected=%v actual=%v", a.Expression, a.Operator, a.Value, actual)
	if detail != "" {
		out.Details += " (" + detail + ")"
	}
	return out, nil
}

// compare applies an operator to the resolved value and the literal. A
// nil actual means the path resolved to nothing; only exists treats that
// as a meaningful answer.
func compare(actual any, operator string, expected any) (bool, string) {
	if operator == "exists" {
		return actual != nil, ""
	}
	if actual == nil {
		return false, "path not found"
	}

	switch operator {
	case "eq":
		return valueEquals(actual, expected), ""
	case "ne":
		return !valueEquals(actual, expected), ""

	case "gt", "gte", "lt", "lte":
		// Numeric coercion applies only when both sides already are
		// numbers; strings never coerce.
		a, aok := asNumber(actual)
		e, eok := asNumber(expected)
		if !aok || !eok {
			return false, fmt.Sprintf("operator %s requires numbers, got %T and %T", operator, actual, expected)
		}
		switch operator {
		case "gt":
			return a > e, ""
		case "gte":
			return a >= e, ""
		case "lt":
			return a < e, ""
		default:
			return a <= e, ""
		}

	case "contains":
		switch v := actual.(type) {
		case string:
			return containsString(v, expected), ""
		case []any:
			for _, item := range v {
				if valueEquals(item, expected) {
					return true, ""
				}
			}
			return false, ""
		default:
			return false, fmt.Sprintf("contains not supported on %T", actual)
		}

	case "regex":
		pattern, ok := expected.(string)
		if !ok {
			return false, fmt.Sprintf("regex pattern must be a string, got %T", expected)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid regex: %v", err)
		}
		return re.MatchString(fmt.Sprint(actual)), ""

	default:
		return false, fmt.Sprintf("unknown operator %q", operator)
	}
}

func containsString(haystack string, needle any) bool {
	s, ok := needle.(string)
	if !ok {
		s = fmt.Sprint(needle)
	}
	return strings.Contains(haystack, s)
}

// valueEquals compares with numeric normalization so 3 and 3.0 match
// across YAML and JSON decoding.
func valueEquals(a, b any) bool {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
