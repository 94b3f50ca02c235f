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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != "8082" {
		t.Errorf("expected default port 8082, got %s", cfg.Port)
	}
	if cfg.RateLimit.MaxRequests != 20 || cfg.RateLimit.WindowMinutes != 15 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.AI.PrimaryModel != "gpt-4o" || cfg.AI.FallbackModel != "gpt-4o-mini" {
		t.Errorf("unexpected AI model defaults: %+v", cfg.AI)
	}
	if cfg.Tokens.Budget != 8000 {
		t.Errorf("expected default token budget 8000, got %d", cfg.Tokens.Budget)
	}
	if cfg.Usage.FreeConversations != 10 {
		t.Errorf("expected default free conversations 10, got %d", cfg.Usage.FreeConversations)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "50")
	t.Setenv("RATE_LIMIT_WINDOW_MINUTES", "5")
	t.Setenv("TOKEN_BUDGET", "4000")
	t.Setenv("AI_PRIMARY_MODEL", "gpt-4-turbo")
	t.Setenv("USAGE_FREE_CONVERSATIONS", "25")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.RateLimit.MaxRequests != 50 {
		t.Errorf("expected max requests 50, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.Tokens.Budget != 4000 {
		t.Errorf("expected token budget 4000, got %d", cfg.Tokens.Budget)
	}
	if cfg.AI.PrimaryModel != "gpt-4-turbo" {
		t.Errorf("expected primary model gpt-4-turbo, got %s", cfg.AI.PrimaryModel)
	}
	if cfg.Usage.FreeConversations != 25 {
		t.Errorf("expected free conversations 25, got %d", cfg.Usage.FreeConversations)
	}

	policy := cfg.RateLimit.Policy()
	if policy.Window != 5*time.Minute {
		t.Errorf("expected 5m window, got %v", policy.Window)
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	content := []byte(`
port: "8888"
jwt_secret: yaml-secret
rate_limit:
  max_requests: 30
ai:
  fallback_model: gpt-3.5-turbo
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("PLANNER_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != "8888" {
		t.Errorf("expected port from file, got %s", cfg.Port)
	}
	if cfg.JWTSecret != "yaml-secret" {
		t.Errorf("expected jwt secret from file, got %q", cfg.JWTSecret)
	}
	if cfg.RateLimit.MaxRequests != 30 {
		t.Errorf("expected max requests 30, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.AI.FallbackModel != "gpt-3.5-turbo" {
		t.Errorf("expected fallback model from file, got %s", cfg.AI.FallbackModel)
	}
	// Values the file leaves out keep their defaults.
	if cfg.RateLimit.WindowMinutes != 15 {
		t.Errorf("expected default window minutes, got %d", cfg.RateLimit.WindowMinutes)
	}
}

func TestEnvOverridesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	if err := os.WriteFile(path, []byte(`port: "8888"`), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("PLANNER_CONFIG_FILE", path)
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Port != "7000" {
		t.Errorf("environment must win over the file, got %s", cfg.Port)
	}
}
