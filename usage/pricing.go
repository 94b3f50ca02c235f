// Copyright 2025 Sharp Ireland
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usage

import "fmt"

// Model pricing as of mid 2025. Prices stored in cents per 1M tokens to
// avoid floating point issues; all prices USD.

// ModelPricing contains pricing for a specific model.
type ModelPricing struct {
	PromptCostPer1M     int // cents per 1M prompt tokens
	CompletionCostPer1M int // cents per 1M completion tokens
}

// modelPricing maps model identifiers to pricing.
var modelPricing = map[string]ModelPricing{
	"gpt-4o":        {250, 1000}, // $2.50/$10.00 per 1M tokens
	"gpt-4o-mini":   {15, 60},    // $0.15/$0.60 per 1M tokens
	"gpt-4-turbo":   {1000, 3000},
	"gpt-3.5-turbo": {50, 150},

	// Conservative fallback for unknown models.
	"default": {1000, 3000},
}

// CalculateCost returns the cost in cents for a completion. Integer cents
// keep the arithmetic exact.
func CalculateCost(model string, promptTokens, completionTokens int) int {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing["default"]
	}

	promptCost := (promptTokens * pricing.PromptCostPer1M) / 1_000_000
	completionCost := (completionTokens * pricing.CompletionCostPer1M) / 1_000_000

	return promptCost + completionCost
}

// GetModelPricing returns the pricing for a model identifier, reporting
// whether the model is known.
func GetModelPricing(model string) (ModelPricing, bool) {
	pricing, ok := modelPricing[model]
	return pricing, ok
}

// FormatCostToDollars converts cents to a dollar string (135 -> "$1.35").
func FormatCostToDollars(cents int) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100.0)
}
