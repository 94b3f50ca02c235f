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

// Package gateway orchestrates LLM completion calls: it builds the ordered
// message sequence, enforces the token budget before any external call,
// falls back to a secondary model once after a primary failure, classifies
// provider errors into a closed taxonomy, and retries retryable failures
// with exponential backoff.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/ceotind/sharpireland-sub000/shared/logger"
	"github.com/ceotind/sharpireland-sub000/tokens"
)

// Defaults for the gateway configuration.
const (
	DefaultPrimaryModel   = "gpt-4o"
	DefaultFallbackModel  = "gpt-4o-mini"
	DefaultMaxTokens      = 1024
	DefaultTemperature    = 0.7
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 10 * time.Second
)

// Config holds the gateway tunables. Zero fields fall back to defaults.
type Config struct {
	PrimaryModel   string
	FallbackModel  string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// normalize applies defaults for zero fields.
func (c Config) normalize() Config {
	if c.PrimaryModel == "" {
		c.PrimaryModel = DefaultPrimaryModel
	}
	if c.FallbackModel == "" {
		c.FallbackModel = DefaultFallbackModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Gateway owns one long-lived provider client and the completion policy.
// It holds no persisted state and is safe for concurrent use.
type Gateway struct {
	provider   Provider
	accountant *tokens.Accountant
	cfg        Config
	log        *logger.Logger

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a gateway over an explicitly constructed provider client.
func New(provider Provider, accountant *tokens.Accountant, cfg Config, log *logger.Logger) *Gateway {
	if accountant == nil {
		accountant = tokens.NewAccountant(tokens.Config{})
	}
	if log == nil {
		log = logger.New("gateway")
	}
	return &Gateway{
		provider:   provider,
		accountant: accountant,
		cfg:        cfg.normalize(),
		log:        log,
		sleep:      sleepContext,
	}
}

// Config returns the gateway's normalized configuration.
func (g *Gateway) Config() Config {
	return g.cfg
}

// buildMessages assembles the ordered wire sequence: system context first,
// prior turns in order, the new user message last.
func buildMessages(req ChatRequest) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	if req.BusinessContext != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.BusinessContext})
	}
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: RoleUser, Content: req.Message})
	return messages
}

// Complete performs one completion: budget check, primary model, then one
// unconditional fallback attempt on primary failure. Errors are always
// *GatewayError.
func (g *Gateway) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := buildMessages(req)

	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	if !g.accountant.WithinBudget(contents, 0) {
		est := g.accountant.EstimateConversation(contents)
		return nil, &GatewayError{
			Code: ErrCodeMessageLimitExceeded,
			Message: fmt.Sprintf("conversation estimated at %d tokens exceeds the %d token limit",
				est.Count, g.accountant.Budget()),
			Retryable: false,
		}
	}

	params := CompletionParams{MaxTokens: g.cfg.MaxTokens, Temperature: g.cfg.Temperature}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.Temperature >= 0 {
		params.Temperature = req.Temperature
	}

	start := time.Now()
	resp, err := g.call(ctx, g.cfg.PrimaryModel, messages, params)
	if err == nil {
		return g.chatResponse(resp, g.cfg.PrimaryModel, false, time.Since(start), contents), nil
	}

	primaryErr := ClassifyProviderError(err)
	g.log.Warn(req.UserID, req.RequestID, "primary model failed, trying fallback", map[string]interface{}{
		"primary_model":  g.cfg.PrimaryModel,
		"fallback_model": g.cfg.FallbackModel,
		"error_code":     string(primaryErr.Code),
	})

	start = time.Now()
	resp, err = g.call(ctx, g.cfg.FallbackModel, messages, params)
	if err == nil {
		return g.chatResponse(resp, g.cfg.FallbackModel, true, time.Since(start), contents), nil
	}

	fallbackErr := ClassifyProviderError(err)
	g.log.ErrorWithCode(req.UserID, req.RequestID, "fallback model failed",
		string(fallbackErr.Code), err, map[string]interface{}{
			"fallback_model": g.cfg.FallbackModel,
		})
	return nil, fallbackErr
}

// CompleteWithRetry wraps Complete with exponential backoff. A non-retryable
// error stops immediately; at most MaxAttempts total attempts are made, and
// context cancellation aborts any pending backoff.
func (g *Gateway) CompleteWithRetry(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		resp, err := g.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		backoff := g.backoff(attempt)
		g.log.Warn(req.UserID, req.RequestID, "retrying after backoff", map[string]interface{}{
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"error_code": string(CodeOf(err)),
		})
		if err := g.sleep(ctx, backoff); err != nil {
			return nil, ClassifyProviderError(err)
		}
	}

	return nil, lastErr
}

// call issues one provider request under the per-call timeout.
func (g *Gateway) call(ctx context.Context, model string, messages []Message, params CompletionParams) (*ProviderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	return g.provider.CreateChatCompletion(callCtx, model, messages, params)
}

// chatResponse converts a provider result, pinning the model identifier to
// the one the gateway actually selected. When the provider reports no token
// accounting, the accountant's estimate substitutes.
func (g *Gateway) chatResponse(resp *ProviderResponse, model string, usedFallback bool, latency time.Duration, contents []string) *ChatResponse {
	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.PromptTokens = g.accountant.EstimateConversation(contents).Count
		usage.CompletionTokens = g.accountant.EstimateText(resp.Content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &ChatResponse{
		Content:      resp.Content,
		Model:        model,
		UsedFallback: usedFallback,
		FinishReason: resp.FinishReason,
		Usage:        usage,
		Latency:      latency,
		LatencyMs:    latency.Milliseconds(),
	}
}

// backoff returns the wait before the next attempt: the initial backoff
// doubled per attempt, capped at the maximum.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= g.cfg.MaxBackoff {
			return g.cfg.MaxBackoff
		}
	}
	if d > g.cfg.MaxBackoff {
		d = g.cfg.MaxBackoff
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
