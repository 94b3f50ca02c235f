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

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// timeoutNetError simulates a transport-level timeout.
type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

// plainNetError simulates a non-timeout transport failure.
type plainNetError struct{}

func (plainNetError) Error() string   { return "connection refused" }
func (plainNetError) Timeout() bool   { return false }
func (plainNetError) Temporary() bool { return false }

// TestClassifyProviderError maps every failure shape to its taxonomy code.
func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      ErrorCode
		wantRetryable bool
	}{
		{
			name:          "quota exhausted is non-retryable",
			err:           &ProviderError{Provider: "openai", Type: ErrTypeInsufficientQuota, StatusCode: 429},
			wantCode:      ErrCodeAIQuotaExceeded,
			wantRetryable: false,
		},
		{
			name:          "rate limit is a retryable service error",
			err:           &ProviderError{Provider: "openai", Type: ErrTypeRateLimit, StatusCode: 429},
			wantCode:      ErrCodeAIServiceError,
			wantRetryable: true,
		},
		{
			name:          "server error is retryable",
			err:           &ProviderError{Provider: "openai", Type: ErrTypeServer, StatusCode: 503},
			wantCode:      ErrCodeAIServiceError,
			wantRetryable: true,
		},
		{
			name:          "deadline exceeded is a timeout",
			err:           context.DeadlineExceeded,
			wantCode:      ErrCodeAITimeout,
			wantRetryable: true,
		},
		{
			name:          "wrapped deadline exceeded is a timeout",
			err:           fmt.Errorf("do request: %w", context.DeadlineExceeded),
			wantCode:      ErrCodeAITimeout,
			wantRetryable: true,
		},
		{
			name:          "cancellation is internal and final",
			err:           context.Canceled,
			wantCode:      ErrCodeInternalError,
			wantRetryable: false,
		},
		{
			name:          "net timeout is a timeout",
			err:           fmt.Errorf("do request: %w", timeoutNetError{}),
			wantCode:      ErrCodeAITimeout,
			wantRetryable: true,
		},
		{
			name:          "net failure is a network error",
			err:           fmt.Errorf("do request: %w", plainNetError{}),
			wantCode:      ErrCodeNetworkError,
			wantRetryable: true,
		},
		{
			name:          "unknown error is a network error",
			err:           errors.New("something odd"),
			wantCode:      ErrCodeNetworkError,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyProviderError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if got.Unwrap() == nil {
				t.Error("classified error must keep its cause for logs")
			}
		})
	}
}

// TestClassifyPassthrough verifies that an existing GatewayError is returned
// unchanged.
func TestClassifyPassthrough(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute)
	orig := &GatewayError{Code: ErrCodeRateLimitExceeded, Message: "slow down", WindowReset: &reset}

	got := ClassifyProviderError(orig)
	if got != orig {
		t.Error("expected the same GatewayError instance")
	}
}

// TestGatewayErrorHelpers covers IsRetryable and CodeOf.
func TestGatewayErrorHelpers(t *testing.T) {
	err := NewGatewayError(ErrCodeAIServiceError, "upstream down")
	if !IsRetryable(err) {
		t.Error("AI_SERVICE_ERROR should be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}

	if CodeOf(err) != ErrCodeAIServiceError {
		t.Errorf("CodeOf = %s", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != ErrCodeInternalError {
		t.Error("non-taxonomy errors default to INTERNAL_ERROR")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if CodeOf(wrapped) != ErrCodeAIServiceError {
		t.Error("CodeOf must see through wrapping")
	}
}
