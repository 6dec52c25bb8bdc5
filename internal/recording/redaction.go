package recording

import (
	"fmt"
	"regexp"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/runner"
)

// RedactedPlaceholder replaces any matched secret.
const RedactedPlaceholder = "[REDACTED]"

// ContentExcludedPlaceholder replaces content in metadata_only recordings.
const ContentExcludedPlaceholder = "[CONTENT_EXCLUDED]"

// Truncation caps applied to persisted content.
const (
	MaxMessageContentBytes = 50_000
	MaxResponseBytes       = 100_000
)

// Built-in secret patterns, applied in order. The bearer pattern must run
// before the generic auth pattern so the token is consumed whole.
var builtinPatterns = []string{
	`(?i)bearer\s+[a-zA-Z0-9._-]+`,
	`(?i)(api[_-]?key|secret|password|token|authorization)\s*[:=]\s*\S+`,
	`sk-ant-[a-zA-Z0-9-]{20,}`,
	`sk-[a-zA-Z0-9]{20,}`,
	`gh[porus]_[a-zA-Z0-9]{36}`,
	`(?i)cookie:\s*\S+`,
	`(?i)set-cookie:\s*\S+`,
	`(?i)x-api-key:\s*\S+`,
}

var compiledBuiltins = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(builtinPatterns))
	for _, p := range builtinPatterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}()

// Redactor scrubs secrets from strings with an ordered regex pipeline.
// Custom patterns are additive: they extend the built-in set, never
// replace it.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles custom patterns on top of the built-ins.
func NewRedactor(customPatterns []string) (*Redactor, error) {
	patterns := append([]*regexp.Regexp(nil), compiledBuiltins...)
	for _, p := range customPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("recording: invalid custom redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Redactor{patterns: patterns}, nil
}

// Redact replaces every secret match with the placeholder. Idempotent:
// redacting twice yields the same output.
func (r *Redactor) Redact(content string) string {
	if r == nil {
		return content
	}
	for _, re := range r.patterns {
		content = re.ReplaceAllString(content, RedactedPlaceholder)
	}
	return content
}

// Truncate caps content at max bytes, replacing the tail with an explicit
// marker naming how many bytes were dropped.
func Truncate(content string, max int) string {
	if len(content) <= max {
		return content
	}
	dropped := len(content) - max
	return content[:max] + fmt.Sprintf("…[TRUNCATED %d bytes]", dropped)
}

// RedactTrace returns a copy of the trace with message content and final
// content scrubbed and size-capped, and string values in tool-call
// arguments scrubbed (not size-capped). The input is never mutated.
func (r *Redactor) RedactTrace(tr *runner.Trace) *runner.Trace {
	if tr == nil {
		return nil
	}

	out := *tr
	out.Messages = make([]adapter.Message, len(tr.Messages))
	for i, msg := range tr.Messages {
		m := msg
		m.Content = Truncate(r.Redact(m.Content), MaxMessageContentBytes)
		m.ToolCalls = redactToolCalls(r, m.ToolCalls)
		out.Messages[i] = m
	}
	out.ToolCalls = redactToolCalls(r, tr.ToolCalls)
	out.FinalContent = Truncate(r.Redact(tr.FinalContent), MaxResponseBytes)
	return &out
}

func redactToolCalls(r *Redactor, calls []adapter.ToolCall) []adapter.ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]adapter.ToolCall, len(calls))
	for i, tc := range calls {
		c := tc
		c.Arguments = redactValueMap(r, tc.Arguments)
		out[i] = c
	}
	return out
}

func redactValueMap(r *Redactor, m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = redactValue(r, v)
	}
	return out
}

func redactValue(r *Redactor, v any) any {
	switch value := v.(type) {
	case string:
		return r.Redact(value)
	case map[string]any:
		return redactValueMap(r, value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = redactValue(r, item)
		}
		return out
	default:
		return v
	}
}

// StripContent blanks message content and tool arguments for
// metadata_only recordings while preserving roles, tool names, counts,
// and usage.
func StripContent(tr *runner.Trace) *runner.Trace {
	if tr == nil {
		return nil
	}

	out := *tr
	out.Messages = make([]adapter.Message, len(tr.Messages))
	for i, msg := range tr.Messages {
		m := msg
		if m.Content != "" {
			m.Content = ContentExcludedPlaceholder
		}
		m.ToolCalls = stripToolCalls(m.ToolCalls)
		out.Messages[i] = m
	}
	out.ToolCalls = stripToolCalls(tr.ToolCalls)
	out.FinalContent = ""
	return &out
}

func stripToolCalls(calls []adapter.ToolCall) []adapter.ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]adapter.ToolCall, len(calls))
	for i, tc := range calls {
		c := adapter.ToolCall{ID: tc.ID, Name: tc.Name}
		if tc.Arguments != nil {
			c.Arguments = map[string]any{"_excluded": ContentExcludedPlaceholder}
		}
		out[i] = c
	}
	return out
}
