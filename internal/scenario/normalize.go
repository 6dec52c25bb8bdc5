package scenario

import (
	"fmt"
	"sort"
	"strings"
)

var operatorKeys = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {}, "lt": {}, "lte": {},
	"contains": {}, "regex": {},
}

// NormalizeAssertion converts a raw assertion mapping into canonical form.
// Sugar types (tool_called, output_contains) expand to their underlying
// type; operator-key shorthand ({path: …, contains: X}) becomes a
// canonical jmespath assertion.
func NormalizeAssertion(raw map[string]any) (Assertion, error) {
	if raw == nil {
		return Assertion{}, fmt.Errorf("scenario: nil assertion")
	}

	out := Assertion{
		Weight:   rawFloat(raw, "weight", 1.0),
		Required: rawBool(raw, "required"),
	}

	typ, hasType := rawString(raw, "type")
	if !hasType {
		return normalizeShorthand(raw, out)
	}

	switch typ {
	case "tool_called":
		tool, ok := rawString(raw, "tool")
		if !ok || tool == "" {
			return Assertion{}, fmt.Errorf("scenario: tool_called assertion missing tool name")
		}
		out.Type = "tool_sequence"
		out.Mode = ModeAnyOrder
		out.Sequence = []string{tool}
		return out, nil

	case "output_contains":
		value, ok := raw["value"]
		if !ok {
			return Assertion{}, fmt.Errorf("scenario: output_contains assertion missing value")
		}
		out.Type = "jmespath"
		out.Expression = "response.content"
		out.Operator = "contains"
		out.Value = value
		return out, nil

	case "jmespath":
		expr, ok := rawString(raw, "expression")
		if !ok || expr == "" {
			return Assertion{}, fmt.Errorf("scenario: jmespath assertion missing expression")
		}
		op, _ := rawString(raw, "operator")
		if op == "" {
			return Assertion{}, fmt.Errorf("scenario: jmespath assertion missing operator")
		}
		out.Type = typ
		out.Expression = expr
		out.Operator = strings.ToLower(op)
		out.Value = raw["value"]
		return out, nil

	case "tool_sequence":
		seq, err := rawStringSlice(raw, "sequence")
		if err != nil {
			return Assertion{}, fmt.Errorf("scenario: tool_sequence: %w", err)
		}
		if len(seq) == 0 {
			return Assertion{}, fmt.Errorf("scenario: tool_sequence assertion missing sequence")
		}
		mode, _ := rawString(raw, "mode")
		mode = strings.ToLower(strings.TrimSpace(mode))
		switch mode {
		case ModeExact, ModeInOrder, ModeAnyOrder:
		case "":
			mode = ModeExact
		default:
			return Assertion{}, fmt.Errorf("scenario: tool_sequence: unknown mode %q", mode)
		}
		out.Type = typ
		out.Sequence = seq
		out.Mode = mode
		return out, nil

	case "cost_limit":
		max, ok := rawFloatPtr(raw, "max_usd")
		if !ok {
			return Assertion{}, fmt.Errorf("scenario: cost_limit assertion missing max_usd")
		}
		out.Type = typ
		out.MaxUSD = max
		return out, nil

	case "latency_limit":
		max, ok := rawFloatPtr(raw, "max_seconds")
		if !ok {
			return Assertion{}, fmt.Errorf("scenario: latency_limit assertion missing max_seconds")
		}
		out.Type = typ
		out.MaxSeconds = max
		return out, nil

	case "judge":
		criteria, err := rawCriteria(raw, "criteria")
		if err != nil {
			return Assertion{}, fmt.Errorf("scenario: judge: %w", err)
		}
		if len(criteria) == 0 {
			return Assertion{}, fmt.Errorf("scenario: judge assertion missing criteria")
		}
		out.Type = typ
		out.Criteria = criteria
		out.JudgeAdapter, _ = rawString(raw, "judge_adapter")
		out.JudgeModel, _ = rawString(raw, "judge_model")
		if k, ok := rawInt(raw, "k"); ok {
			if k < 1 || k%2 == 0 {
				return Assertion{}, fmt.Errorf("scenario: judge: k must be a positive odd number, got %d", k)
			}
			out.K = &k
		}
		out.IncludeSystemPrompt = rawBool(raw, "include_system_prompt")
		out.CustomPrompt, _ = rawString(raw, "custom_prompt")
		if th, ok := rawFloatPtr(raw, "threshold"); ok {
			out.Threshold = th
		}
		return out, nil

	default:
		return Assertion{}, fmt.Errorf("scenario: unknown assertion type %q", typ)
	}
}

func normalizeShorthand(raw map[string]any, out Assertion) (Assertion, error) {
	var found []string
	for key := range raw {
		if _, ok := operatorKeys[key]; ok {
			found = append(found, key)
		}
	}
	sort.Strings(found)

	if len(found) > 1 {
		return Assertion{}, fmt.Errorf("scenario: assertion has multiple operator keys %v, use exactly one", found)
	}
	if len(found) == 0 {
		return Assertion{}, fmt.Errorf("scenario: assertion has no type and no operator key")
	}

	op := found[0]
	out.Type = "jmespath"
	out.Operator = op
	out.Value = raw[op]
	if path, ok := rawString(raw, "path"); ok && path != "" {
		out.Expression = path
	} else {
		out.Expression = "response.content"
	}
	return out, nil
}

// NormalizeAssertions converts a list of raw assertion mappings.
func NormalizeAssertions(raws []map[string]any) ([]Assertion, error) {
	out := make([]Assertion, 0, len(raws))
	for i, raw := range raws {
		a, err := NormalizeAssertion(raw)
		if err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func rawString(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func rawBool(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func rawFloat(raw map[string]any, key string, fallback float64) float64 {
	if f, ok := rawFloatPtr(raw, key); ok {
		return *f
	}
	return fallback
}

func rawFloatPtr(raw map[string]any, key string) (*float64, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case float64:
		return &n, true
	case float32:
		f := float64(n)
		return &f, true
	case int:
		f := float64(n)
		return &f, true
	case int64:
		f := float64(n)
		return &f, true
	default:
		return nil, false
	}
}

func rawInt(raw map[string]any, key string) (int, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func rawStringSlice(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}

func rawCriteria(raw map[string]any, key string) ([]Criterion, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("criteria must be a list, got %T", v)
	}
	out := make([]Criterion, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("criterion %d must be a mapping, got %T", i, item)
		}
		c := Criterion{Weight: rawFloat(m, "weight", 1.0)}
		c.Name, _ = rawString(m, "name")
		c.Description, _ = rawString(m, "description")
		if c.Name == "" {
			return nil, fmt.Errorf("criterion %d missing name", i)
		}
		out = append(out, c)
	}
	return out, nil
}
