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

// Package main is the entry point for the business planner service.
//
// The planner governs AI-assisted business planning conversations:
// - Validates and sanitizes untrusted input before it reaches any backend
// - Rate-limits per user/IP and escalates abusive callers into timed blocks
// - Budgets conversation tokens before any external call
// - Completes through a primary model with a single fallback and retry
//
// Usage:
//
//	./planner
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8082)
//	DATABASE_URL - PostgreSQL connection string (required)
//	REDIS_URL - Redis URL for the rate-limit store (optional)
//	JWT_SECRET - HMAC secret for bearer-token auth
//	OPENAI_API_KEY - completion provider API key
//	PLANNER_CONFIG_FILE - optional YAML config file
package main

import (
	"github.com/ceotind/sharpireland-sub000/planner"
)

func main() {
	planner.Run()
}
