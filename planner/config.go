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
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ceotind/sharpireland-sub000/ratelimit"
	"github.com/ceotind/sharpireland-sub000/tokens"
	"github.com/ceotind/sharpireland-sub000/usage"
)

// Config holds every planner tunable. Values resolve in order: built-in
// defaults, then the optional YAML file named by PLANNER_CONFIG_FILE, then
// environment variables.
type Config struct {
	Port           string   `yaml:"port"`
	DatabaseURL    string   `yaml:"database_url"`
	RedisURL       string   `yaml:"redis_url"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tokens    TokensConfig    `yaml:"tokens"`
	AI        AIConfig        `yaml:"ai"`
	Usage     usage.Limits    `yaml:"usage"`
}

// RateLimitConfig mirrors ratelimit.Policy with YAML bindings.
type RateLimitConfig struct {
	WindowMinutes      int `yaml:"window_minutes"`
	MaxRequests        int `yaml:"max_requests"`
	SuspicionThreshold int `yaml:"suspicion_threshold"`
	BlockMinutes       int `yaml:"block_minutes"`
}

// Policy converts the config into a limiter policy.
func (c RateLimitConfig) Policy() ratelimit.Policy {
	return ratelimit.Policy{
		Window:             time.Duration(c.WindowMinutes) * time.Minute,
		MaxRequests:        c.MaxRequests,
		SuspicionThreshold: c.SuspicionThreshold,
		BlockDuration:      time.Duration(c.BlockMinutes) * time.Minute,
	}
}

// TokensConfig mirrors tokens.Config with YAML bindings.
type TokensConfig struct {
	CharsPerToken        int `yaml:"chars_per_token"`
	PerMessageOverhead   int `yaml:"per_message_overhead"`
	ConversationOverhead int `yaml:"conversation_overhead"`
	Budget               int `yaml:"budget"`
}

// AccountantConfig converts the config for the token accountant.
func (c TokensConfig) AccountantConfig() tokens.Config {
	return tokens.Config{
		CharsPerToken:        c.CharsPerToken,
		PerMessageOverhead:   c.PerMessageOverhead,
		ConversationOverhead: c.ConversationOverhead,
		Budget:               c.Budget,
	}
}

// AIConfig holds the provider and gateway tunables.
type AIConfig struct {
	APIKey                string  `yaml:"api_key"`
	BaseURL               string  `yaml:"base_url"`
	PrimaryModel          string  `yaml:"primary_model"`
	FallbackModel         string  `yaml:"fallback_model"`
	MaxTokens             int     `yaml:"max_tokens"`
	Temperature           float64 `yaml:"temperature"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxAttempts           int     `yaml:"max_attempts"`
	InitialBackoffMs      int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs          int     `yaml:"max_backoff_ms"`
}

// LoadConfig resolves the full configuration.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("PLANNER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Port:           "8082",
		AllowedOrigins: []string{"*"},
		RateLimit: RateLimitConfig{
			WindowMinutes:      15,
			MaxRequests:        20,
			SuspicionThreshold: 5,
			BlockMinutes:       60,
		},
		Tokens: TokensConfig{
			CharsPerToken:        tokens.DefaultCharsPerToken,
			PerMessageOverhead:   tokens.DefaultPerMessageOverhead,
			ConversationOverhead: tokens.DefaultConversationOverhead,
			Budget:               tokens.DefaultBudget,
		},
		AI: AIConfig{
			PrimaryModel:          "gpt-4o",
			FallbackModel:         "gpt-4o-mini",
			MaxTokens:             1024,
			Temperature:           0.7,
			RequestTimeoutSeconds: 30,
			MaxAttempts:           3,
			InitialBackoffMs:      1000,
			MaxBackoffMs:          10000,
		},
		Usage: usage.DefaultLimits(),
	}
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")

	setInt(&cfg.RateLimit.WindowMinutes, "RATE_LIMIT_WINDOW_MINUTES")
	setInt(&cfg.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS")
	setInt(&cfg.RateLimit.SuspicionThreshold, "RATE_LIMIT_SUSPICION_THRESHOLD")
	setInt(&cfg.RateLimit.BlockMinutes, "RATE_LIMIT_BLOCK_MINUTES")

	setInt(&cfg.Tokens.Budget, "TOKEN_BUDGET")

	setString(&cfg.AI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.AI.PrimaryModel, "AI_PRIMARY_MODEL")
	setString(&cfg.AI.FallbackModel, "AI_FALLBACK_MODEL")
	setInt(&cfg.AI.MaxTokens, "AI_MAX_TOKENS")
	setInt(&cfg.AI.MaxAttempts, "AI_MAX_ATTEMPTS")
	setInt(&cfg.AI.RequestTimeoutSeconds, "AI_REQUEST_TIMEOUT_SECONDS")

	setInt(&cfg.Usage.FreeConversations, "USAGE_FREE_CONVERSATIONS")
	setInt(&cfg.Usage.PaidConversations, "USAGE_PAID_CONVERSATIONS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
