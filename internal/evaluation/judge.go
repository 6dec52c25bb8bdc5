package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/runner"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// Built-in judge defaults; project config and per-assertion settings
// override them in that order.
const (
	defaultJudgeAdapter   = "openai"
	defaultJudgeModel     = "gpt-4o-mini"
	defaultJudgeK         = 3
	defaultJudgeMaxTokens = 1024
	defaultJudgeThreshold = 0.8

	scoringToolName = "score_criteria"

	judgeArgTruncateLen = 100
)

const judgeSystemTemplate = `You are an expert evaluator assessing the quality of an AI agent's response.

Evaluate the agent's response against each of the following criteria independently. Score each criterion on a 0.0 to 1.0 scale using these anchors:

- 0.0: Completely fails to meet the criterion
- 0.25: Mostly fails, with only minor elements present
- 0.5: Partially meets the criterion
- 0.75: Mostly meets the criterion with minor gaps
- 1.0: Fully meets the criterion

Criteria to evaluate:

{{range .Criteria}}- {{.Name}} (weight: {{.Weight}}): {{.Description}}
{{end}}
Instructions:
- Evaluate each criterion independently. Do not let one criterion's score influence another.
- Provide specific reasoning for each score referencing the agent's actual output.
- Use the score_criteria tool to submit your evaluation.`

const judgeUserTemplate = `Please evaluate the following agent interaction against the criteria defined in your instructions.

{{.ContextBlock}}

Use the score_criteria tool to submit your per-criterion scores and reasoning.`

var (
	judgeSystemTmpl = template.Must(template.New("judge_system").Parse(judgeSystemTemplate))
	judgeUserTmpl   = template.Must(template.New("judge_user").Parse(judgeUserTemplate))
)

// judgeSettings is the effective configuration after the three-tier merge
// of assertion overrides, project config, and built-in defaults.
type judgeSettings struct {
	Adapter     string
	Model       string
	K           int
	Temperature float64
	MaxTokens   int
	Threshold   float64
}

func resolveJudgeSettings(a *scenario.Assertion, ec *Context) judgeSettings {
	s := judgeSettings{
		Adapter:   defaultJudgeAdapter,
		Model:     defaultJudgeModel,
		K:         defaultJudgeK,
		MaxTokens: defaultJudgeMaxTokens,
		Threshold: defaultJudgeThreshold,
	}

	if ec != nil && ec.JudgeConfig != nil {
		pc := ec.JudgeConfig
		if strings.TrimSpace(pc.Adapter) != "" {
			s.Adapter = pc.Adapter
		}
		if strings.TrimSpace(pc.Model) != "" {
			s.Model = pc.Model
		}
		if pc.K != nil {
			s.K = *pc.K
		}
		if pc.Temperature != nil {
			s.Temperature = *pc.Temperature
		}
		if pc.DefaultThreshold != nil {
			s.Threshold = *pc.DefaultThreshold
		}
	}

	if a != nil {
		if strings.TrimSpace(a.JudgeAdapter) != "" {
			s.Adapter = a.JudgeAdapter
		}
		if strings.TrimSpace(a.JudgeModel) != "" {
			s.Model = a.JudgeModel
		}
		if a.K != nil {
			s.K = *a.K
		}
		if a.Threshold != nil {
			s.Threshold = *a.Threshold
		}
	}

	return s
}

// JudgeEvaluator scores a trace against named criteria using a separate
// LLM. It issues k independent calls with a forced scoring tool,
// aggregates per-criterion medians, and passes when the weighted mean
// clears the threshold.
type JudgeEvaluator struct{}

func (JudgeEvaluator) Type() string {
	return "judge"
}

func (JudgeEvaluator) Evaluate(ctx context.Context, tr *runner.Trace, a *scenario.Assertion, ec *Context) (*EvalResult, error) {
	if tr == nil {
		return nil, fmt.Errorf("judge: nil trace")
	}
	if a == nil {
		return nil, fmt.Errorf("judge: nil assertion")
	}

	out := &EvalResult{
		AssertionType: "judge",
		Weight:        a.Weight,
		Required:      a.Required,
	}

	if len(a.Criteria) == 0 {
		out.Details = "judge assertion has no criteria"
		return out, nil
	}

	settings := resolveJudgeSettings(a, ec)
	if settings.K < 1 || settings.K%2 == 0 {
		out.Details = fmt.Sprintf("judge k must be a positive odd number, got %d", settings.K)
		return out, nil
	}
	if settings.K == 1 && ec != nil && ec.Verbose && ec.LogWriter != nil {
		fmt.Fprintln(ec.LogWriter, "warning: judge k=1, no voting redundancy")
	}

	if ec == nil || ec.Adapters == nil {
		return nil, fmt.Errorf("judge: no adapter registry in eval context")
	}
	judgeAdapter, err := ec.Adapters.New(settings.Adapter)
	if err != nil {
		out.Details = fmt.Sprintf("judge adapter %q unavailable: %v", settings.Adapter, err)
		return out, nil
	}

	systemPrompt := a.CustomPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt, err = renderJudgeSystem(a.Criteria)
		if err != nil {
			return nil, fmt.Errorf("judge: render system prompt: %w", err)
		}
	}

	var scn *scenario.Scenario
	if ec != nil {
		scn = ec.Scenario
	}
	userPrompt, err := renderJudgeUser(buildJudgeContext(tr, scn, a.IncludeSystemPrompt))
	if err != nil {
		return nil, fmt.Errorf("judge: render user prompt: %w", err)
	}

	messages := []adapter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	tools := []adapter.ToolDefinition{buildScoringTool(a.Criteria)}

	temp := settings.Temperature
	cfg := &adapter.Config{
		Model:       settings.Model,
		Temperature: &temp,
		MaxTokens:   settings.MaxTokens,
		ToolChoice:  scoringToolName,
	}

	var votes []judgeVote
	judgeCost := 0.0
	failures := 0

	for i := 0; i < settings.K; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := judgeAdapter.SendTurn(ctx, messages, tools, cfg)
		if err != nil {
			failures++
			continue
		}

		if cost := adapter.EstimateCost(settings.Model, result.Usage.InputTokens, result.Usage.OutputTokens); cost != nil {
			judgeCost += *cost
		}

		vote, ok := extractVote(result, a.Criteria)
		if !ok {
			failures++
			continue
		}
		votes = append(votes, vote)
	}

	out.Metadata = map[string]any{
		"judge_model":    settings.Model,
		"judge_k":        settings.K,
		"judge_cost_usd": judgeCost,
	}

	if len(votes) == 0 {
		out.Details = fmt.Sprintf("judge had no valid votes (%d/%d calls failed)", failures, settings.K)
		return out, nil
	}

	score, perCriterion := aggregateVotes(votes, a.Criteria)
	out.Score = score
	out.Passed = score >= settings.Threshold
	out.Metadata["per_criterion"] = perCriterion

	parts := make([]string, 0, len(a.Criteria))
	names := make([]string, 0, len(perCriterion))
	for name := range perCriterion {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, perCriterion[name]))
	}
	out.Details = fmt.Sprintf("judge=%s k=%d votes=%d/%d score=%.3f threshold=%.2f | %s",
		settings.Model, settings.K, len(votes), settings.K, score, settings.Threshold, strings.Join(parts, ", "))

	return out, nil
}

func renderJudgeSystem(criteria []scenario.Criterion) (string, error) {
	var buf bytes.Buffer
	err := judgeSystemTmpl.Execute(&buf, struct{ Criteria []scenario.Criterion }{criteria})
	return buf.String(), err
}

func renderJudgeUser(contextBlock string) (string, error) {
	var buf bytes.Buffer
	err := judgeUserTmpl.Execute(&buf, struct{ ContextBlock string }{contextBlock})
	return buf.String(), err
}

// buildJudgeContext assembles what the judge sees: the user prompt, the
// agent's final answer, and a truncated tool-call summary. The agent's
// system prompt is included only on request.
func buildJudgeContext(tr *runner.Trace, scn *scenario.Scenario, includeSystemPrompt bool) string {
	var sections []string

	if includeSystemPrompt && scn != nil && scn.SystemPrompt != "" {
		sp := scn.SystemPrompt
		if len(sp) > 2000 {
			sp = sp[:2000] + "..."
		}
		sections = append(sections, "## Scenario System Prompt\n\n"+sp)

		if len(scn.Tools) > 0 {
			lines := make([]string, 0, len(scn.Tools))
			for _, t := range scn.Tools {
				lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
			}
			sections = append(sections, "## Available Tools\n\n"+strings.Join(lines, "\n"))
		}
	}

	userPrompt := ""
	for _, m := range tr.Messages {
		if m.Role == "user" {
			userPrompt = m.Content
			break
		}
	}
	if userPrompt != "" {
		sections = append(sections, "## User Prompt\n\n"+userPrompt)
	}

	final := tr.FinalContent
	if final == "" {
		final = "(empty)"
	}
	sections = append(sections, "## Agent's Final Response\n\n"+final)

	sections = append(sections, "## Tool Calls Made\n\n"+buildToolCallSummary(tr))

	return strings.Join(sections, "\n\n")
}

func buildToolCallSummary(tr *runner.Trace) string {
	if len(tr.ToolCalls) == 0 {
		return "No tool calls were made."
	}

	lines := make([]string, 0, len(tr.ToolCalls))
	for i, tc := range tr.ToolCalls {
		args := "{}"
		if tc.Arguments != nil {
			if b, err := json.Marshal(tc.Arguments); err == nil {
				args = string(b)
			}
		}
		if len(args) > judgeArgTruncateLen {
			args = args[:judgeArgTruncateLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. %s(%s)", i+1, tc.Name, args))
	}
	return strings.Join(lines, "\n")
}

// buildScoringTool creates the structured-output tool the judge is forced
// to call: one nested object per criterion with score and reasoning.
func buildScoringTool(criteria []scenario.Criterion) adapter.ToolDefinition {
	properties := make(map[string]any, len(criteria))
	required := make([]string, 0, len(criteria))

	for _, c := range criteria {
		required = append(required, c.Name)
		properties[c.Name] = map[string]any{
			"type":        "object",
			"description": fmt.Sprintf("Evaluation for %q: %s", c.Name, c.Description),
			"properties": map[string]any{
				"score": map[string]any{
					"type":        "number",
					"description": fmt.Sprintf("Score for %s on a 0.0-1.0 scale", c.Name),
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Reasoning for the %s score", c.Name),
				},
			},
			"required": []string{"score", "reasoning"},
		}
	}

	return adapter.ToolDefinition{
		Name:        scoringToolName,
		Description: "Submit per-criterion evaluation scores and reasoning.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// aggregateVotes computes the per-criterion median over votes and the
// weighted mean across criteria. The median makes a single outlier vote
// harmless, which is why no separate majority count is needed.
func aggregateVotes(votes []judgeVote, criteria []scenario.Criterion) (float64, map[string]float64) {
	perCriterion := make(map[string]float64, len(criteria))

	var totalWeight, weightedSum float64
	for _, c := range criteria {
		var scores []float64
		for _, vote := range votes {
			if s, ok := vote[c.Name]; ok {
				scores = append(scores, s.Score)
			}
		}
		med := median(scores)
		perCriterion[c.Name] = med
		totalWeight += c.Weight
		weightedSum += med * c.Weight
	}

	if totalWeight == 0 {
		return 0, perCriterion
	}
	return weightedSum / totalWeight, perCriterion
}

func median(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
