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
	"fmt"
)

// CompletionParams carries the per-call generation parameters.
type CompletionParams struct {
	MaxTokens   int
	Temperature float64
}

// ProviderResponse is the provider-level completion result.
type ProviderResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        TokenUsage
}

// Provider is the narrow boundary to an LLM completion service. The gateway
// holds one long-lived provider and selects the model per call; providers
// must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// CreateChatCompletion issues one completion request for the ordered
	// message sequence against the given model.
	CreateChatCompletion(ctx context.Context, model string, messages []Message, params CompletionParams) (*ProviderResponse, error)
}

// Provider error types, as reported in API error bodies.
const (
	ErrTypeInsufficientQuota = "insufficient_quota"
	ErrTypeRateLimit         = "rate_limit_error"
	ErrTypeInvalidRequest    = "invalid_request_error"
	ErrTypeAuth              = "authentication_error"
	ErrTypeServer            = "server_error"
)

// ProviderError is an error returned by a provider implementation. It is the
// only provider-specific error shape the gateway understands; classification
// into the caller-facing taxonomy happens in one place (ClassifyProviderError).
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Type is the provider's machine-readable error type.
	Type string `json:"type"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// StatusCode is the upstream HTTP status code (if applicable).
	StatusCode int `json:"status_code,omitempty"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsQuotaExhausted reports whether the provider's paid quota is spent, which
// no amount of retrying fixes.
func (e *ProviderError) IsQuotaExhausted() bool {
	return e.Type == ErrTypeInsufficientQuota
}
