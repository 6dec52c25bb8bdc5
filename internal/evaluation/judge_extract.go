package evaluation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jherleth/salvo-ai/internal/adapter"
	"github.com/jherleth/salvo-ai/internal/scenario"
)

// judgeVote is one judge call's output: criterion name to scored entry.
type judgeVote map[string]criterionScore

type criterionScore struct {
	Score     float64
	Reasoning string
}

var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// extractVote pulls per-criterion scores out of a judge turn. The forced
// scoring tool call is tried first; if the model answered in prose
// instead, three text-JSON fallbacks run in order: whole response, first
// brace-balanced substring, fenced code block. A vote counts only when it
// names at least one expected criterion.
func extractVote(result *adapter.TurnResult, criteria []scenario.Criterion) (judgeVote, bool) {
	if result == nil {
		return nil, false
	}

	for _, tc := range result.ToolCalls {
		if tc.Name != scoringToolName || tc.Arguments == nil {
			continue
		}
		if vote, ok := voteFromMap(tc.Arguments, criteria); ok {
			return vote, true
		}
	}

	if parsed := jsonFromText(result.Content); parsed != nil {
		if vote, ok := voteFromMap(parsed, criteria); ok {
			return vote, true
		}
	}

	return nil, false
}

func voteFromMap(raw map[string]any, criteria []scenario.Criterion) (judgeVote, bool) {
	vote := make(judgeVote)
	for _, c := range criteria {
		entry, ok := raw[c.Name]
		if !ok {
			continue
		}
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		scoreRaw, ok := m["score"]
		if !ok {
			continue
		}
		score, ok := asNumber(scoreRaw)
		if !ok {
			continue
		}
		reasoning, _ := m["reasoning"].(string)
		vote[c.Name] = criterionScore{Score: clamp01(score), Reasoning: reasoning}
	}
	if len(vote) == 0 {
		return nil, false
	}
	return vote, true
}

func jsonFromText(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}

	if first := strings.Index(text, "{"); first != -1 {
		depth := 0
		for i := first; i < len(text); i++ {
			if text[i] == '{' {
				depth++
			} else if text[i] == '}' {
				if depth--; depth == 0 {
					out = nil
					if err := json.Unmarshal([]byte(text[first:i+1]), &out); err == nil {
						return out
					}
					break
				}
			}
		}
	}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		out = nil
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil {
			return out
		}
	}

	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
