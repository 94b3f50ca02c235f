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

// Package openai implements the gateway provider boundary against an
// OpenAI-compatible chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ceotind/sharpireland-sub000/gateway"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string        // Required: API key
	BaseURL string        // Optional: API base URL (default: https://api.openai.com)
	OrgID   string        // Optional: organization header
	Timeout time.Duration // Optional: HTTP timeout (default: 120s)
}

// Provider implements gateway.Provider against the chat-completions API.
type Provider struct {
	apiKey  string
	baseURL string
	orgID   string
	client  HTTPClient
	healthy bool
	mu      sync.RWMutex
}

// NewProvider creates a new OpenAI provider instance.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		orgID:   cfg.OrgID,
		client:  &http.Client{Timeout: cfg.Timeout},
		healthy: true,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// IsHealthy returns whether the provider is healthy.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy && p.apiKey != ""
}

// setHealthy updates the provider health status.
func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// Wire types for the chat-completions API.

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []gateway.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// CreateChatCompletion issues one completion request against the given model.
func (p *Provider) CreateChatCompletion(ctx context.Context, model string, messages []gateway.Message, params gateway.CompletionParams) (*gateway.ProviderResponse, error) {
	apiReq := chatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if params.MaxTokens > 0 {
		apiReq.MaxTokens = params.MaxTokens
	}

	// Temperature: 0.0 is valid (deterministic), negative means unset.
	if params.Temperature >= 0 {
		temperature := params.Temperature
		apiReq.Temperature = &temperature
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("openai API request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var apiResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, &gateway.ProviderError{
			Provider:   p.Name(),
			Type:       gateway.ErrTypeServer,
			Message:    "response contained no choices",
			StatusCode: resp.StatusCode,
		}
	}

	choice := apiResp.Choices[0]
	return &gateway.ProviderResponse{
		Content:      choice.Message.Content,
		Model:        apiResp.Model,
		FinishReason: choice.FinishReason,
		Usage: gateway.TokenUsage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}

// setHeaders sets the required API headers.
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.orgID != "" {
		req.Header.Set("OpenAI-Organization", p.orgID)
	}
}

// parseAPIError converts an error response body into a typed provider error.
func (p *Provider) parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Type == "" && errResp.Error.Message == "" {
		return &gateway.ProviderError{
			Provider:   p.Name(),
			Type:       typeForStatus(statusCode),
			Message:    fmt.Sprintf("unexpected response (status %d)", statusCode),
			StatusCode: statusCode,
		}
	}

	errType := errResp.Error.Type
	// Quota exhaustion arrives as code=insufficient_quota on a 429.
	if errResp.Error.Code == gateway.ErrTypeInsufficientQuota {
		errType = gateway.ErrTypeInsufficientQuota
	}
	if errType == "" {
		errType = typeForStatus(statusCode)
	}

	return &gateway.ProviderError{
		Provider:   p.Name(),
		Type:       errType,
		Message:    errResp.Error.Message,
		StatusCode: statusCode,
	}
}

// typeForStatus maps a status code to the closest provider error type when
// the body carries none.
func typeForStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return gateway.ErrTypeRateLimit
	case statusCode == http.StatusUnauthorized:
		return gateway.ErrTypeAuth
	case statusCode >= 500:
		return gateway.ErrTypeServer
	default:
		return gateway.ErrTypeInvalidRequest
	}
}
