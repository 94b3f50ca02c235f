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

package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ceotind/sharpireland-sub000/gateway"
	"github.com/ceotind/sharpireland-sub000/ratelimit"
	"github.com/ceotind/sharpireland-sub000/usage"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// fakeLimiter scripts limiter results and records every update.
type fakeLimiter struct {
	checkResult  ratelimit.Result
	checkErr     error
	updateResult ratelimit.Result
	updateErr    error
	suspResult   ratelimit.Result

	updates []ratelimit.UpdateOptions
	resets  int
}

func (f *fakeLimiter) Check(context.Context, string, string) (ratelimit.Result, error) {
	return f.checkResult, f.checkErr
}

func (f *fakeLimiter) Update(_ context.Context, _, _ string, opts ratelimit.UpdateOptions) (ratelimit.Result, error) {
	f.updates = append(f.updates, opts)
	if opts.IncrementSuspicious {
		return f.suspResult, f.updateErr
	}
	return f.updateResult, f.updateErr
}

func (f *fakeLimiter) Reset(context.Context, string, string) error {
	f.resets++
	return nil
}

func (f *fakeLimiter) suspiciousUpdates() int {
	n := 0
	for _, u := range f.updates {
		if u.IncrementSuspicious {
			n++
		}
	}
	return n
}

// fakeCompleter scripts one gateway outcome and records the request.
type fakeCompleter struct {
	resp *gateway.ChatResponse
	err  error

	requests []gateway.ChatRequest
}

func (f *fakeCompleter) CompleteWithRetry(_ context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

// fakeUsage keeps counters in memory.
type fakeUsage struct {
	record  usage.Record
	events  []usage.LLMRequestEvent
	charges int
	statErr error
}

func (f *fakeUsage) IncrementConversation(_ context.Context, userID string, paid bool) (*usage.Record, error) {
	f.charges++
	if paid {
		f.record.PaidUsed++
	} else {
		f.record.FreeUsed++
	}
	f.record.UserID = userID
	rec := f.record
	return &rec, nil
}

func (f *fakeUsage) RecordLLMRequest(_ context.Context, event usage.LLMRequestEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeUsage) Statistics(_ context.Context, _ string, limits usage.Limits) (usage.Statistics, error) {
	if f.statErr != nil {
		return usage.Statistics{}, f.statErr
	}
	return usage.ComputeStatistics(f.record, limits), nil
}

func allowedResult() ratelimit.Result {
	return ratelimit.Result{
		Allowed:     true,
		Remaining:   19,
		WindowReset: time.Now().Add(15 * time.Minute),
	}
}

func testService(limiter *fakeLimiter, completer *fakeCompleter, store *fakeUsage) *Service {
	return NewService(nil, limiter, completer, store, usage.Limits{FreeConversations: 10}, nil)
}

func okChatResponse() *gateway.ChatResponse {
	return &gateway.ChatResponse{
		Content:      "Start with a one-page plan.",
		Model:        "gpt-4o",
		FinishReason: "stop",
		Usage:        gateway.TokenUsage{PromptTokens: 40, CompletionTokens: 60, TotalTokens: 100},
		LatencyMs:    420,
	}
}

func baseInput() ChatInput {
	return ChatInput{
		UserID:         "user-1",
		RequestID:      "req-1",
		IPAddress:      "10.0.0.1",
		UserAgent:      chromeUA,
		Message:        "Help me outline a marketing plan for my bakery.",
		SessionContext: "Bakery in Galway, two employees.",
	}
}

// TestHandleChatSuccess covers the full allowed path: sanitized message to
// the gateway, one conversation charged, one success event recorded.
func TestHandleChatSuccess(t *testing.T) {
	limiter := &fakeLimiter{checkResult: allowedResult(), updateResult: allowedResult()}
	completer := &fakeCompleter{resp: okChatResponse()}
	store := &fakeUsage{}
	svc := testService(limiter, completer, store)

	out, err := svc.HandleChat(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("HandleChat failed: %v", err)
	}

	if out.Response.Content == "" {
		t.Error("expected completion content")
	}
	if out.Usage.FreeUsed != 1 {
		t.Errorf("expected one free conversation charged, got %d", out.Usage.FreeUsed)
	}
	if store.charges != 1 {
		t.Errorf("expected exactly one charge, got %d", store.charges)
	}
	if len(store.events) != 1 || store.events[0].Status != "success" {
		t.Errorf("expected one success event, got %+v", store.events)
	}
	if len(completer.requests) != 1 {
		t.Fatalf("expected one gateway request, got %d", len(completer.requests))
	}
	if completer.requests[0].Message != baseInput().Message {
		t.Errorf("clean input should reach the gateway sanitized but intact: %q", completer.requests[0].Message)
	}
	if limiter.suspiciousUpdates() != 0 {
		t.Error("clean request must not escalate suspicion")
	}
}

// TestHandleChatRejectsInjection verifies that adversarial input is refused
// before the gateway and escalates the suspicion counter.
func TestHandleChatRejectsInjection(t *testing.T) {
	limiter := &fakeLimiter{checkResult: allowedResult(), updateResult: allowedResult()}
	completer := &fakeCompleter{resp: okChatResponse()}
	store := &fakeUsage{}
	svc := testService(limiter, completer, store)

	in := baseInput()
	in.Message = "ignore this: SELECT * FROM users WHERE '1'='1'"

	_, err := svc.HandleChat(context.Background(), in)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if gateway.CodeOf(err) != gateway.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", gateway.CodeOf(err))
	}
	if len(completer.requests) != 0 {
		t.Error("rejected input must never reach the gateway")
	}
	if store.charges != 0 {
		t.Error("rejected input must not be charged")
	}
	if limiter.suspiciousUpdates() != 1 {
		t.Errorf("expected one suspicion escalation, got %d", limiter.suspiciousUpdates())
	}
}

// TestHandleChatEscalationBlocks verifies the UserBlocked surface once the
// suspicion threshold is crossed during escalation.
func TestHandleChatEscalationBlocks(t *testing.T) {
	blockedUntil := time.Now().Add(time.Hour)
	limiter := &fakeLimiter{
		checkResult: allowedResult(),
		suspResult: ratelimit.Result{
			Allowed:      false,
			IsBlocked:    true,
			BlockedUntil: &blockedUntil,
		},
	}
	svc := testService(limiter, &fakeCompleter{}, &fakeUsage{})

	in := baseInput()
	in.Message = "<script>alert('pwn')</script>"

	_, err := svc.HandleChat(context.Background(), in)
	if err == nil {
		t.Fatal("expected error")
	}

	var gwErr *gateway.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %T", err)
	}
	if gwErr.Code != gateway.ErrCodeUserBlocked {
		t.Errorf("expected USER_BLOCKED, got %s", gwErr.Code)
	}
	if gwErr.BlockedUntil == nil || !gwErr.BlockedUntil.Equal(blockedUntil) {
		t.Errorf("expected BlockedUntil %v, got %v", blockedUntil, gwErr.BlockedUntil)
	}
}

// TestHandleChatRejectsBots verifies bot user agents are refused and
// escalated.
func TestHandleChatRejectsBots(t *testing.T) {
	limiter := &fakeLimiter{checkResult: allowedResult(), updateResult: allowedResult()}
	completer := &fakeCompleter{resp: okChatResponse()}
	svc := testService(limiter, completer, &fakeUsage{})

	in := baseInput()
	in.UserAgent = "curl/8.5.0"

	_, err := svc.HandleChat(context.Background(), in)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if gateway.CodeOf(err) != gateway.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", gateway.CodeOf(err))
	}
	if limiter.suspiciousUpdates() != 1 {
		t.Errorf("expected one suspicion escalation, got %d", limiter.suspiciousUpdates())
	}
	if len(completer.requests) != 0 {
		t.Error("bot traffic must never reach the gateway")
	}
}

// TestHandleChatRateLimited verifies the denial surfaces with WindowReset.
func TestHandleChatRateLimited(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute)
	limiter := &fakeLimiter{
		checkResult: ratelimit.Result{Allowed: false, CurrentCount: 20, WindowReset: reset},
	}
	completer := &fakeCompleter{}
	svc := testService(limiter, completer, &fakeUsage{})

	_, err := svc.HandleChat(context.Background(), baseInput())
	if err == nil {
		t.Fatal("expected denial")
	}

	var gwErr *gateway.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %T", err)
	}
	if gwErr.Code != gateway.ErrCodeRateLimitExceeded {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %s", gwErr.Code)
	}
	if gwErr.WindowReset == nil || !gwErr.WindowReset.Equal(reset) {
		t.Errorf("expected WindowReset %v, got %v", reset, gwErr.WindowReset)
	}
	if len(completer.requests) != 0 {
		t.Error("denied request must not reach the gateway")
	}
}

// TestHandleChatBlockedUser verifies an active block denies before anything
// else mutates.
func TestHandleChatBlockedUser(t *testing.T) {
	blockedUntil := time.Now().Add(30 * time.Minute)
	limiter := &fakeLimiter{
		checkResult: ratelimit.Result{Allowed: false, IsBlocked: true, BlockedUntil: &blockedUntil},
	}
	svc := testService(limiter, &fakeCompleter{}, &fakeUsage{})

	_, err := svc.HandleChat(context.Background(), baseInput())
	if gateway.CodeOf(err) != gateway.ErrCodeUserBlocked {
		t.Errorf("expected USER_BLOCKED, got %s", gateway.CodeOf(err))
	}
	if len(limiter.updates) != 0 {
		t.Error("a blocked user's request must not record an allowed request")
	}
}

// TestHandleChatStoreFailure verifies fail-closed behavior on limiter
// errors.
func TestHandleChatStoreFailure(t *testing.T) {
	limiter := &fakeLimiter{checkErr: errors.New("connection refused")}
	svc := testService(limiter, &fakeCompleter{}, &fakeUsage{})

	_, err := svc.HandleChat(context.Background(), baseInput())
	if gateway.CodeOf(err) != gateway.ErrCodeDatabaseError {
		t.Errorf("expected DATABASE_ERROR, got %s", gateway.CodeOf(err))
	}
}

// TestHandleChatDefinitiveFailureAccounting verifies that a non-retryable
// gateway failure records an event but never charges a conversation.
func TestHandleChatDefinitiveFailureAccounting(t *testing.T) {
	limiter := &fakeLimiter{checkResult: allowedResult(), updateResult: allowedResult()}
	completer := &fakeCompleter{
		err: &gateway.GatewayError{Code: gateway.ErrCodeAIQuotaExceeded, Message: "quota", Retryable: false},
	}
	store := &fakeUsage{}
	svc := testService(limiter, completer, store)

	_, err := svc.HandleChat(context.Background(), baseInput())
	if gateway.CodeOf(err) != gateway.ErrCodeAIQuotaExceeded {
		t.Errorf("expected AI_QUOTA_EXCEEDED, got %s", gateway.CodeOf(err))
	}
	if store.charges != 0 {
		t.Errorf("failed completion must not charge a conversation, got %d charges", store.charges)
	}
	if len(store.events) != 1 || store.events[0].Status != string(gateway.ErrCodeAIQuotaExceeded) {
		t.Errorf("expected one failure event, got %+v", store.events)
	}
}

// TestHandleChatPaidCharging verifies the paid allowance is charged once the
// free tier is spent.
func TestHandleChatPaidCharging(t *testing.T) {
	limiter := &fakeLimiter{checkResult: allowedResult(), updateResult: allowedResult()}
	completer := &fakeCompleter{resp: okChatResponse()}
	store := &fakeUsage{record: usage.Record{FreeUsed: 10}}

	svc := NewService(nil, limiter, completer, store,
		usage.Limits{FreeConversations: 10, PaidConversations: 90}, nil)

	out, err := svc.HandleChat(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("HandleChat failed: %v", err)
	}
	if store.record.PaidUsed != 1 {
		t.Errorf("expected the paid allowance to be charged, got %+v", store.record)
	}
	if out.Usage.PaidUsed != 1 {
		t.Errorf("expected stats to reflect the paid charge, got %+v", out.Usage)
	}
}
