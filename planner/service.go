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

// Package planner is the caller-facing service for the business planner:
// it sequences input validation, rate limiting, token budgeting, and the AI
// gateway behind one entry point and an HTTP surface.
package planner

import (
	"context"

	"github.com/ceotind/sharpireland-sub000/gateway"
	"github.com/ceotind/sharpireland-sub000/ratelimit"
	"github.com/ceotind/sharpireland-sub000/security"
	"github.com/ceotind/sharpireland-sub000/shared/logger"
	"github.com/ceotind/sharpireland-sub000/usage"
)

// RateLimiter is the limiter boundary the service depends on.
type RateLimiter interface {
	Check(ctx context.Context, userID, ip string) (ratelimit.Result, error)
	Update(ctx context.Context, userID, ip string, opts ratelimit.UpdateOptions) (ratelimit.Result, error)
	Reset(ctx context.Context, userID, ip string) error
}

// Completer is the gateway boundary the service depends on.
type Completer interface {
	CompleteWithRetry(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
}

// UsageStore is the usage-recording boundary the service depends on.
type UsageStore interface {
	IncrementConversation(ctx context.Context, userID string, paid bool) (*usage.Record, error)
	RecordLLMRequest(ctx context.Context, event usage.LLMRequestEvent) error
	Statistics(ctx context.Context, userID string, limits usage.Limits) (usage.Statistics, error)
}

// ChatInput is the single caller-facing entry point's request.
type ChatInput struct {
	UserID              string
	RequestID           string
	IPAddress           string
	UserAgent           string
	Message             string
	SessionContext      string
	ConversationHistory []gateway.Message
}

// ChatOutput pairs the completion with the caller's current quota view.
type ChatOutput struct {
	Response *gateway.ChatResponse `json:"response"`
	Usage    usage.Statistics      `json:"usage"`
}

// Service sequences validation, rate limiting, budgeting, and completion.
type Service struct {
	validator *security.Validator
	limiter   RateLimiter
	completer Completer
	usage     UsageStore
	limits    usage.Limits
	log       *logger.Logger
}

// NewService wires the planner pipeline.
func NewService(validator *security.Validator, limiter RateLimiter, completer Completer, usageStore UsageStore, limits usage.Limits, log *logger.Logger) *Service {
	if validator == nil {
		validator = security.NewValidator(security.NewCatalog(), 0)
	}
	if log == nil {
		log = logger.New("planner")
	}
	return &Service{
		validator: validator,
		limiter:   limiter,
		completer: completer,
		usage:     usageStore,
		limits:    limits,
		log:       log,
	}
}

// HandleChat runs one planner conversation turn: validate the message and
// user agent, enforce the rate limit, complete through the gateway, then
// record usage. Errors are always *gateway.GatewayError; usage accounting
// happens only after a definitive success or a definitive non-retryable
// failure.
func (s *Service) HandleChat(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	verdict := s.validator.Validate(in.Message, "message")
	promValidationVerdicts.WithLabelValues(verdict.RiskLevel.String()).Inc()

	if !verdict.IsValid {
		if verdict.RiskLevel >= security.RiskHigh {
			if blockedErr := s.escalate(ctx, in, "malicious input pattern"); blockedErr != nil {
				promRequestsTotal.WithLabelValues("blocked").Inc()
				return nil, blockedErr
			}
		}
		s.log.Warn(in.UserID, in.RequestID, "message rejected by validator", map[string]interface{}{
			"risk_level": verdict.RiskLevel.String(),
			"issues":     verdict.Issues,
		})
		promRequestsTotal.WithLabelValues("invalid_input").Inc()
		return nil, &gateway.GatewayError{
			Code:      gateway.ErrCodeInvalidInput,
			Message:   "message failed security validation",
			Retryable: false,
		}
	}

	if in.UserAgent != "" {
		agent := s.validator.AnalyzeUserAgent(in.UserAgent)
		if agent.IsBot {
			if blockedErr := s.escalate(ctx, in, "bot user agent"); blockedErr != nil {
				promRequestsTotal.WithLabelValues("blocked").Inc()
				return nil, blockedErr
			}
			promRequestsTotal.WithLabelValues("invalid_input").Inc()
			return nil, &gateway.GatewayError{
				Code:      gateway.ErrCodeInvalidInput,
				Message:   "automated clients are not permitted",
				Retryable: false,
			}
		}
		if agent.IsSuspicious {
			s.log.Warn(in.UserID, in.RequestID, "suspicious user agent", map[string]interface{}{
				"reasons": agent.Reasons,
			})
		}
	}

	check, err := s.limiter.Check(ctx, in.UserID, in.IPAddress)
	if err != nil {
		promRequestsTotal.WithLabelValues("store_error").Inc()
		return nil, databaseError(err)
	}
	if denied := deniedError(check); denied != nil {
		promRequestsTotal.WithLabelValues(denialStatus(check)).Inc()
		promRateLimitDenials.WithLabelValues(denialStatus(check)).Inc()
		return nil, denied
	}

	update, err := s.limiter.Update(ctx, in.UserID, in.IPAddress, ratelimit.UpdateOptions{})
	if err != nil {
		promRequestsTotal.WithLabelValues("store_error").Inc()
		return nil, databaseError(err)
	}
	if denied := deniedError(update); denied != nil {
		promRequestsTotal.WithLabelValues(denialStatus(update)).Inc()
		promRateLimitDenials.WithLabelValues(denialStatus(update)).Inc()
		return nil, denied
	}

	resp, err := s.completer.CompleteWithRetry(ctx, gateway.ChatRequest{
		UserID:          in.UserID,
		RequestID:       in.RequestID,
		Message:         verdict.SanitizedInput,
		BusinessContext: in.SessionContext,
		History:         in.ConversationHistory,
		Temperature:     -1,
	})
	if err != nil {
		code := gateway.CodeOf(err)
		promRequestsTotal.WithLabelValues("ai_error").Inc()
		promLLMCalls.WithLabelValues("", string(code)).Inc()
		// A non-retryable failure is definitive: record the event so the
		// failed call is visible in usage, without charging a conversation.
		if !gateway.IsRetryable(err) && code != gateway.ErrCodeMessageLimitExceeded {
			s.recordEvent(ctx, in, &gateway.ChatResponse{}, string(code))
		}
		return nil, err
	}

	promLLMCalls.WithLabelValues(resp.Model, "success").Inc()
	if resp.UsedFallback {
		promFallbacksTotal.Inc()
	}

	stats := s.recordSuccess(ctx, in, resp)
	promRequestsTotal.WithLabelValues("success").Inc()
	return &ChatOutput{Response: resp, Usage: stats}, nil
}

// Statistics returns the caller's current quota view.
func (s *Service) Statistics(ctx context.Context, userID string) (usage.Statistics, error) {
	stats, err := s.usage.Statistics(ctx, userID, s.limits)
	if err != nil {
		return usage.Statistics{}, databaseError(err)
	}
	return stats, nil
}

// ResetRateLimit is the administrative reset operation.
func (s *Service) ResetRateLimit(ctx context.Context, userID, ip string) error {
	if err := s.limiter.Reset(ctx, userID, ip); err != nil {
		return databaseError(err)
	}
	return nil
}

// escalate bumps the suspicion counter for the key and returns a UserBlocked
// error when the threshold was crossed, nil otherwise.
func (s *Service) escalate(ctx context.Context, in ChatInput, reason string) *gateway.GatewayError {
	res, err := s.limiter.Update(ctx, in.UserID, in.IPAddress, ratelimit.UpdateOptions{IncrementSuspicious: true})
	if err != nil {
		// The store failure already denies the request through the
		// validation error path; log and move on.
		s.log.ErrorWithCode(in.UserID, in.RequestID, "failed to escalate suspicion", "DATABASE_ERROR", err, nil)
		return nil
	}

	s.log.Warn(in.UserID, in.RequestID, "suspicious activity recorded", map[string]interface{}{
		"reason": reason,
		"ip":     in.IPAddress,
	})

	if res.IsBlocked {
		return &gateway.GatewayError{
			Code:         gateway.ErrCodeUserBlocked,
			Message:      "account temporarily blocked due to suspicious activity",
			Retryable:    false,
			BlockedUntil: res.BlockedUntil,
		}
	}
	return nil
}

// recordSuccess charges one conversation and records the completion event.
// Recording is best-effort: failures are logged, never surfaced.
func (s *Service) recordSuccess(ctx context.Context, in ChatInput, resp *gateway.ChatResponse) usage.Statistics {
	stats, err := s.usage.Statistics(ctx, in.UserID, s.limits)
	if err != nil {
		s.log.ErrorWithCode(in.UserID, in.RequestID, "failed to load usage statistics", "DATABASE_ERROR", err, nil)
	}

	paid := stats.FreeRemaining == 0 && s.limits.PaidConversations > 0
	if rec, err := s.usage.IncrementConversation(ctx, in.UserID, paid); err != nil {
		s.log.ErrorWithCode(in.UserID, in.RequestID, "failed to charge conversation", "DATABASE_ERROR", err, nil)
	} else {
		stats = usage.ComputeStatistics(*rec, s.limits)
	}

	s.recordEvent(ctx, in, resp, "success")
	return stats
}

// recordEvent persists one LLM call outcome, best-effort.
func (s *Service) recordEvent(ctx context.Context, in ChatInput, resp *gateway.ChatResponse, status string) {
	err := s.usage.RecordLLMRequest(ctx, usage.LLMRequestEvent{
		UserID:           in.UserID,
		RequestID:        in.RequestID,
		Model:            resp.Model,
		UsedFallback:     resp.UsedFallback,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMs:        resp.LatencyMs,
		Status:           status,
	})
	if err != nil {
		s.log.ErrorWithCode(in.UserID, in.RequestID, "failed to record LLM event", "DATABASE_ERROR", err, nil)
	}
}

// deniedError converts a denied limiter result into its taxonomy error.
func deniedError(res ratelimit.Result) *gateway.GatewayError {
	if res.Allowed {
		return nil
	}
	if res.IsBlocked {
		return &gateway.GatewayError{
			Code:         gateway.ErrCodeUserBlocked,
			Message:      "account temporarily blocked due to suspicious activity",
			Retryable:    false,
			BlockedUntil: res.BlockedUntil,
		}
	}
	reset := res.WindowReset
	return &gateway.GatewayError{
		Code:        gateway.ErrCodeRateLimitExceeded,
		Message:     "request limit reached, try again later",
		Retryable:   false,
		WindowReset: &reset,
	}
}

// denialStatus labels a denied result for metrics.
func denialStatus(res ratelimit.Result) string {
	if res.IsBlocked {
		return "blocked"
	}
	return "rate_limited"
}

// databaseError wraps a store failure as an opaque taxonomy error.
func databaseError(err error) *gateway.GatewayError {
	return &gateway.GatewayError{
		Code:      gateway.ErrCodeDatabaseError,
		Message:   "a storage error prevented the request",
		Retryable: false,
		Err:       err,
	}
}
