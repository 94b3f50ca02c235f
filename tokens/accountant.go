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

// Package tokens implements provider-agnostic token budgeting for LLM
// conversations. Estimates are deterministic approximations, intentionally
// decoupled from any provider tokenizer, and are checked before any external
// call is made.
package tokens

// Defaults for the estimation model. All of them are configurable through
// Config; these values track the character-per-token ratio of English text.
const (
	DefaultCharsPerToken        = 4
	DefaultPerMessageOverhead   = 4
	DefaultConversationOverhead = 3
	DefaultBudget               = 8000
)

// Estimate is a conversation-level token count. IsEstimate is always true:
// the accountant never reports provider-measured usage.
type Estimate struct {
	Count      int  `json:"count"`
	IsEstimate bool `json:"is_estimate"`
}

// Config tunes the accountant. Zero values fall back to the defaults.
type Config struct {
	CharsPerToken        int
	PerMessageOverhead   int
	ConversationOverhead int
	Budget               int
}

// Accountant estimates token costs and enforces a hard conversation budget.
// It is stateless and safe for concurrent use.
type Accountant struct {
	charsPerToken        int
	perMessageOverhead   int
	conversationOverhead int
	budget               int
}

// NewAccountant creates an accountant, applying defaults for zero fields.
func NewAccountant(cfg Config) *Accountant {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.PerMessageOverhead <= 0 {
		cfg.PerMessageOverhead = DefaultPerMessageOverhead
	}
	if cfg.ConversationOverhead <= 0 {
		cfg.ConversationOverhead = DefaultConversationOverhead
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Accountant{
		charsPerToken:        cfg.CharsPerToken,
		perMessageOverhead:   cfg.PerMessageOverhead,
		conversationOverhead: cfg.ConversationOverhead,
		budget:               cfg.Budget,
	}
}

// Budget returns the hard ceiling.
func (a *Accountant) Budget() int {
	return a.budget
}

// EstimateText approximates the token count of a single text: character
// count divided by the configured divisor, rounded up.
func (a *Accountant) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + a.charsPerToken - 1) / a.charsPerToken
}

// EstimateConversation approximates the token count of an ordered message
// sequence, adding a fixed per-message overhead and a fixed conversation
// overhead.
func (a *Accountant) EstimateConversation(contents []string) Estimate {
	count := a.conversationOverhead
	for _, content := range contents {
		count += a.EstimateText(content) + a.perMessageOverhead
	}
	return Estimate{Count: count, IsEstimate: true}
}

// WithinBudget reports whether the conversation plus additional tokens fits
// the hard ceiling. A conversation landing exactly on the ceiling fits.
func (a *Accountant) WithinBudget(contents []string, additional int) bool {
	est := a.EstimateConversation(contents)
	return est.Count+additional <= a.budget
}
