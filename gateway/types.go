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

package gateway

import "time"

// Message roles in the completion wire order.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a completion request as the planner hands it to the
// gateway. BusinessContext feeds the system prompt; History carries prior
// turns in order. MaxTokens and Temperature override the configured
// defaults when set (zero MaxTokens and negative Temperature mean unset).
type ChatRequest struct {
	UserID          string
	RequestID       string
	Message         string
	BusinessContext string
	History         []Message
	MaxTokens       int
	Temperature     float64
}

// TokenUsage carries provider-reported token counters.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a successful completion. UsedFallback=true implies Model
// equals the configured fallback model.
type ChatResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	UsedFallback bool          `json:"used_fallback"`
	FinishReason string        `json:"finish_reason"`
	Usage        TokenUsage    `json:"usage"`
	Latency      time.Duration `json:"-"`
	LatencyMs    int64         `json:"latency_ms"`
}
