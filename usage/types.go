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

// Package usage records planner conversation and LLM consumption and derives
// per-user quota statistics from the persisted counters.
package usage

import "time"

// Default plan limits. A paid allowance of zero means the user is on the
// free tier.
const (
	DefaultFreeLimit = 10
	DefaultPaidLimit = 0
)

// Limits holds the per-plan conversation allowances.
type Limits struct {
	FreeConversations int `yaml:"free_conversations"`
	PaidConversations int `yaml:"paid_conversations"`
}

// DefaultLimits returns the free-tier allowances.
func DefaultLimits() Limits {
	return Limits{
		FreeConversations: DefaultFreeLimit,
		PaidConversations: DefaultPaidLimit,
	}
}

// Record is the persisted per-user consumption state.
type Record struct {
	UserID    string
	FreeUsed  int
	PaidUsed  int
	UpdatedAt time.Time
}

// Statistics is the derived quota view. It is a pure function of a Record
// and the plan Limits, recomputed on every read and never persisted.
type Statistics struct {
	FreeUsed      int     `json:"free_used"`
	FreeRemaining int     `json:"free_remaining"`
	PaidUsed      int     `json:"paid_used"`
	PaidRemaining int     `json:"paid_remaining"`
	PercentUsed   float64 `json:"percent_used"`
	NeedsUpgrade  bool    `json:"needs_upgrade"`
	CanContinue   bool    `json:"can_continue"`
}

// ComputeStatistics derives the quota view for a record under the given
// limits. Remaining counts never go negative; percent used is capped at 100.
func ComputeStatistics(rec Record, limits Limits) Statistics {
	stats := Statistics{
		FreeUsed:      rec.FreeUsed,
		FreeRemaining: limits.FreeConversations - rec.FreeUsed,
		PaidUsed:      rec.PaidUsed,
		PaidRemaining: limits.PaidConversations - rec.PaidUsed,
	}
	if stats.FreeRemaining < 0 {
		stats.FreeRemaining = 0
	}
	if stats.PaidRemaining < 0 {
		stats.PaidRemaining = 0
	}

	total := limits.FreeConversations + limits.PaidConversations
	if total > 0 {
		stats.PercentUsed = float64(rec.FreeUsed+rec.PaidUsed) / float64(total) * 100
		if stats.PercentUsed > 100 {
			stats.PercentUsed = 100
		}
	}

	stats.CanContinue = stats.FreeRemaining+stats.PaidRemaining > 0
	stats.NeedsUpgrade = stats.FreeRemaining == 0 && limits.PaidConversations == 0

	return stats
}
