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

package usage

import (
	"math"
	"testing"
)

// TestComputeStatistics covers the derived quota view across plan shapes.
func TestComputeStatistics(t *testing.T) {
	tests := []struct {
		name   string
		rec    Record
		limits Limits
		want   Statistics
	}{
		{
			name:   "fresh free-tier user",
			rec:    Record{UserID: "u1"},
			limits: Limits{FreeConversations: 10},
			want: Statistics{
				FreeRemaining: 10,
				CanContinue:   true,
			},
		},
		{
			name:   "partially consumed free tier",
			rec:    Record{UserID: "u1", FreeUsed: 4},
			limits: Limits{FreeConversations: 10},
			want: Statistics{
				FreeUsed:      4,
				FreeRemaining: 6,
				PercentUsed:   40,
				CanContinue:   true,
			},
		},
		{
			name:   "exhausted free tier needs upgrade",
			rec:    Record{UserID: "u1", FreeUsed: 10},
			limits: Limits{FreeConversations: 10},
			want: Statistics{
				FreeUsed:     10,
				PercentUsed:  100,
				NeedsUpgrade: true,
			},
		},
		{
			name:   "exhausted free tier continues on paid allowance",
			rec:    Record{UserID: "u1", FreeUsed: 10, PaidUsed: 3},
			limits: Limits{FreeConversations: 10, PaidConversations: 90},
			want: Statistics{
				FreeUsed:      10,
				PaidUsed:      3,
				PaidRemaining: 87,
				PercentUsed:   13,
				CanContinue:   true,
			},
		},
		{
			name:   "overshoot clamps remaining and percent",
			rec:    Record{UserID: "u1", FreeUsed: 15},
			limits: Limits{FreeConversations: 10},
			want: Statistics{
				FreeUsed:     15,
				PercentUsed:  100,
				NeedsUpgrade: true,
			},
		},
		{
			name:   "fully exhausted paid plan cannot continue",
			rec:    Record{UserID: "u1", FreeUsed: 10, PaidUsed: 90},
			limits: Limits{FreeConversations: 10, PaidConversations: 90},
			want: Statistics{
				FreeUsed:    10,
				PaidUsed:    90,
				PercentUsed: 100,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatistics(tt.rec, tt.limits)

			if got.FreeUsed != tt.want.FreeUsed {
				t.Errorf("FreeUsed = %d, want %d", got.FreeUsed, tt.want.FreeUsed)
			}
			if got.FreeRemaining != tt.want.FreeRemaining {
				t.Errorf("FreeRemaining = %d, want %d", got.FreeRemaining, tt.want.FreeRemaining)
			}
			if got.PaidUsed != tt.want.PaidUsed {
				t.Errorf("PaidUsed = %d, want %d", got.PaidUsed, tt.want.PaidUsed)
			}
			if got.PaidRemaining != tt.want.PaidRemaining {
				t.Errorf("PaidRemaining = %d, want %d", got.PaidRemaining, tt.want.PaidRemaining)
			}
			if math.Abs(got.PercentUsed-tt.want.PercentUsed) > 1e-9 {
				t.Errorf("PercentUsed = %v, want %v", got.PercentUsed, tt.want.PercentUsed)
			}
			if got.NeedsUpgrade != tt.want.NeedsUpgrade {
				t.Errorf("NeedsUpgrade = %v, want %v", got.NeedsUpgrade, tt.want.NeedsUpgrade)
			}
			if got.CanContinue != tt.want.CanContinue {
				t.Errorf("CanContinue = %v, want %v", got.CanContinue, tt.want.CanContinue)
			}
		})
	}
}
