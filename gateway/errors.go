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
	"net"
	"time"
)

// ErrorCode is the closed error taxonomy surfaced to callers. Codes are
// stable strings; raw provider errors never cross this boundary.
type ErrorCode string

const (
	// ErrCodeInvalidInput: the validator rejected the text. Never retried.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeRateLimitExceeded: window quota exhausted. Carries WindowReset.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeUserBlocked: suspicion threshold crossed. Carries BlockedUntil.
	ErrCodeUserBlocked ErrorCode = "USER_BLOCKED"

	// ErrCodeMessageLimitExceeded: token budget exceeded before any call.
	ErrCodeMessageLimitExceeded ErrorCode = "MESSAGE_LIMIT_EXCEEDED"

	// ErrCodeAIQuotaExceeded: provider quota spent. Non-retryable.
	ErrCodeAIQuotaExceeded ErrorCode = "AI_QUOTA_EXCEEDED"

	// ErrCodeAIServiceError: provider-side failure. Retryable.
	ErrCodeAIServiceError ErrorCode = "AI_SERVICE_ERROR"

	// ErrCodeAITimeout: the provider call timed out. Retryable.
	ErrCodeAITimeout ErrorCode = "AI_TIMEOUT"

	// ErrCodeNetworkError: transport failure before any response. Retryable.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodeDatabaseError: store failure. The limiter fails closed.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"

	// ErrCodeInternalError: programming failure, surfaced opaquely.
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// GatewayError is the caller-facing typed error. WindowReset and
// BlockedUntil are populated only for the rate-limit and block codes.
type GatewayError struct {
	Code         ErrorCode  `json:"code"`
	Message      string     `json:"message"`
	Retryable    bool       `json:"retryable"`
	StatusCode   int        `json:"status_code,omitempty"`
	WindowReset  *time.Time `json:"window_reset,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`

	// Err is the underlying cause, kept for logs and never serialized.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a taxonomy error, deriving retryability from the
// code.
func NewGatewayError(code ErrorCode, message string) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

// isRetryableCode reports the default retryability of a taxonomy code.
func isRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeAIServiceError, ErrCodeAITimeout, ErrCodeNetworkError:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable GatewayError.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

// CodeOf extracts the taxonomy code from err, defaulting to InternalError
// for anything that is not a GatewayError.
func CodeOf(err error) ErrorCode {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return ErrCodeInternalError
}

// ClassifyProviderError maps a provider-level failure into the closed
// taxonomy. All provider-specific knowledge lives here; callers see only
// taxonomy codes and sanitized messages.
func ClassifyProviderError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{
			Code:      ErrCodeAITimeout,
			Message:   "AI service did not respond in time",
			Retryable: true,
			Err:       err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &GatewayError{
			Code:      ErrCodeInternalError,
			Message:   "request canceled",
			Retryable: false,
			Err:       err,
		}
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.IsQuotaExhausted() {
			return &GatewayError{
				Code:       ErrCodeAIQuotaExceeded,
				Message:    "AI service quota exhausted",
				Retryable:  false,
				StatusCode: provErr.StatusCode,
				Err:        err,
			}
		}
		return &GatewayError{
			Code:       ErrCodeAIServiceError,
			Message:    "AI service request failed",
			Retryable:  true,
			StatusCode: provErr.StatusCode,
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		code := ErrCodeNetworkError
		message := "network failure reaching AI service"
		if netErr.Timeout() {
			code = ErrCodeAITimeout
			message = "AI service did not respond in time"
		}
		return &GatewayError{
			Code:      code,
			Message:   message,
			Retryable: true,
			Err:       err,
		}
	}

	return &GatewayError{
		Code:      ErrCodeNetworkError,
		Message:   "failed to reach AI service",
		Retryable: true,
		Err:       err,
	}
}
