package adapter

import "math"

// ModelPricing holds USD prices per million tokens.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// pricingTable is static pricing for supported models, USD per million
// tokens.
var pricingTable = map[string]ModelPricing{
	"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"claude-sonnet-4-5": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
}

// modelAliases maps dated model variants to their pricing base.
var modelAliases = map[string]string{
	"claude-sonnet-4-5-20250929": "claude-sonnet-4-5",
	"claude-haiku-4-5-20241022":  "claude-haiku-4-5",
}

// EstimateCost returns the estimated USD cost for a token count, or nil
// when the model has no pricing entry. Unknown cost is never zero; callers
// render nil as "n/a" and exclude it from sums.
func EstimateCost(model string, inputTokens, outputTokens int) *float64 {
	if resolved, ok := modelAliases[model]; ok {
		model = resolved
	}

	pricing, ok := pricingTable[model]
	if !ok {
		return nil
	}

	cost := float64(inputTokens)/1e6*pricing.InputPerMillion +
		float64(outputTokens)/1e6*pricing.OutputPerMillion
	cost = math.Round(cost*1e6) / 1e6
	return &cost
}
