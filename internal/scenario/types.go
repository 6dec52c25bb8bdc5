package scenario

// Tool declares one tool available to the agent, including the canned
// mock payload returned when the model calls it.
type Tool struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters"`
	MockResponse any            `json:"mock_response,omitempty" yaml:"mock_response"`
}

// Criterion is one named, weighted axis within a judge assertion.
type Criterion struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
}

// Tool-sequence matching modes.
const (
	ModeExact    = "exact"
	ModeInOrder  = "in_order"
	ModeAnyOrder = "any_order"
)

// Assertion is the canonical form every declared check normalizes to.
// Only the fields for the assertion's type are populated.
type Assertion struct {
	Type     string  `json:"type"`
	Weight   float64 `json:"weight"`
	Required bool    `json:"required"`

	// jmespath
	Expression string `json:"expression,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      any    `json:"value,omitempty"`

	// tool_sequence
	Sequence []string `json:"sequence,omitempty"`
	Mode     string   `json:"mode,omitempty"`

	// cost_limit / latency_limit
	MaxUSD     *float64 `json:"max_usd,omitempty"`
	MaxSeconds *float64 `json:"max_seconds,omitempty"`

	// judge
	Criteria            []Criterion `json:"criteria,omitempty"`
	JudgeAdapter        string      `json:"judge_adapter,omitempty"`
	JudgeModel          string      `json:"judge_model,omitempty"`
	K                   *int        `json:"k,omitempty"`
	IncludeSystemPrompt bool        `json:"include_system_prompt,omitempty"`
	CustomPrompt        string      `json:"custom_prompt,omitempty"`
	Threshold           *float64    `json:"threshold,omitempty"`
}

// Scenario is a fully loaded, validated test definition. Immutable after
// Load; the content hash stamps every trace produced from it.
type Scenario struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Adapter      string         `json:"adapter"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Prompt       string         `json:"prompt"`
	MaxTurns     int            `json:"max_turns"`
	Temperature  *float64       `json:"temperature,omitempty"`
	Seed         *int           `json:"seed,omitempty"`
	Tools        []Tool         `json:"tools,omitempty"`
	Assertions   []Assertion    `json:"assertions"`
	Threshold    float64        `json:"threshold"`
	Extras       map[string]any `json:"extras,omitempty"`
	// Hash is computed over every field except itself; see ComputeHash.
	Hash string `json:"hash,omitempty"`
}
